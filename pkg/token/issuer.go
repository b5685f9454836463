package token

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/metrics"
)

// reserved claims are always set by the issuer and never by the caller
var reservedClaims = map[string]bool{
	"iss": true,
	"aud": true,
	"sub": true,
	"exp": true,
}

// Issuer is the link-gated token service: a token for (iss, aud, sub) is
// minted only when workspace sub holds the directed link iss -> aud. The
// caller must already be authenticated as the issuing service.
type Issuer struct {
	authority  *Authority
	cache      *cache.Cache
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// NewIssuer creates an issuer with the given default token TTL
func NewIssuer(authority *Authority, c *cache.Cache, defaultTTL time.Duration) *Issuer {
	return &Issuer{
		authority:  authority,
		cache:      c,
		defaultTTL: defaultTTL,
		logger:     log.WithComponent("issuer"),
	}
}

// Issue validates the (issuerID, aud, sub) tuple against the trust graph and
// mints a token. Claims compose in a fixed order: reserved fields first,
// remaining caller extras under a "claims" field, then the link context
// merged at top level. Context wins over caller extras and never shadows
// reserved fields.
func (i *Issuer) Issue(ctx context.Context, issuerID, aud, sub string, extras map[string]any) (string, error) {
	if aud == "" || sub == "" {
		return "", errdefs.New(errdefs.CodeBadRequest, "aud and sub are required")
	}
	if issuerID == aud {
		return "", errdefs.Newf(errdefs.CodeBadLink, "service [%s] cannot issue a token to itself", issuerID)
	}

	issuer, ok := i.cache.Service(ctx, issuerID)
	if !ok {
		return "", errdefs.NotFound("service", issuerID)
	}
	if _, ok := i.cache.Service(ctx, aud); !ok {
		return "", errdefs.NotFound("service", aud)
	}
	ws, ok := i.cache.Workspace(ctx, sub)
	if !ok {
		return "", errdefs.NotFound("workspace", sub)
	}

	link := ws.FindLink(issuerID, aud)
	if link == nil {
		return "", errdefs.Newf(errdefs.CodeUnlinked,
			"no link %s -> %s in workspace [%s]", issuerID, aud, sub)
	}

	claims := map[string]any{
		"iss": issuerID,
		"aud": aud,
		"sub": sub,
	}
	if leftover := stripReserved(extras); len(leftover) > 0 {
		claims["claims"] = leftover
	}
	for k, v := range link.Context {
		if reservedClaims[k] {
			continue
		}
		claims[k] = v
	}

	ttl := i.defaultTTL
	if min, ok := positiveMinutes(issuer.Info["token_ttl_min"]); ok {
		ttl = min
	}

	signed, err := i.authority.Mint(ctx, claims, ttl)
	if err != nil {
		return "", err
	}
	metrics.TokensIssued.Inc()
	i.logger.Debug().Str("iss", issuerID).Str("aud", aud).Str("sub", sub).Msg("token issued")
	return signed, nil
}

// stripReserved drops reserved keys from caller extras
func stripReserved(extras map[string]any) map[string]any {
	if len(extras) == 0 {
		return nil
	}
	out := make(map[string]any, len(extras))
	for k, v := range extras {
		if reservedClaims[k] {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// positiveMinutes interprets an info field as a positive whole minute count.
// JSON decoding yields float64, stored entities may carry int.
func positiveMinutes(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 && n == float64(int64(n)) {
			return time.Duration(n) * time.Minute, true
		}
	case int:
		if n > 0 {
			return time.Duration(n) * time.Minute, true
		}
	case int64:
		if n > 0 {
			return time.Duration(n) * time.Minute, true
		}
	}
	return 0, false
}
