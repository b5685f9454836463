package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/metrics"
)

// Authority mints and verifies RS256 JWTs against the key ring. New tokens
// are signed with the current kid; verification accepts any kid in the ring.
type Authority struct {
	ring *Ring
}

// NewAuthority creates an authority over the ring
func NewAuthority(ring *Ring) *Authority {
	return &Authority{ring: ring}
}

// Ring exposes the backing key ring
func (a *Authority) Ring() *Ring {
	return a.ring
}

// Mint signs the claims with the current key, adding exp = now + ttl. The
// JWT header carries the signing kid.
func (a *Authority) Mint(ctx context.Context, claims map[string]any, ttl time.Duration) (string, error) {
	pair := a.ring.Current()
	if pair == nil {
		if err := a.ring.Load(ctx); err != nil {
			return "", errdefs.Newf(errdefs.CodeKeysUnavailable, "signing keys unavailable: %v", err)
		}
		if pair = a.ring.Current(); pair == nil {
			return "", errdefs.New(errdefs.CodeKeysUnavailable, "no signing key in ring")
		}
	}

	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	mapClaims["exp"] = time.Now().UTC().Add(ttl).Unix()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	tok.Header["kid"] = pair.Kid

	signed, err := tok.SignedString(pair.Private)
	if err != nil {
		return "", errdefs.Newf(errdefs.CodeKeysUnavailable, "failed to sign token: %v", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded claims. An
// unknown kid triggers one ring reload before failing, so tokens minted by a
// peer process after a rotation still verify. Audience is not checked here;
// the link gate at issuance is the binding check.
func (a *Authority) Verify(ctx context.Context, tokenString string) (map[string]any, error) {
	claims, err := a.verify(tokenString)
	if err != nil && errdefs.IsCode(err, errdefs.CodeUnknownKid) {
		if loadErr := a.ring.Load(ctx); loadErr == nil {
			claims, err = a.verify(tokenString)
		}
	}
	if err != nil {
		metrics.TokensVerified.WithLabelValues("invalid").Inc()
		return nil, err
	}
	metrics.TokensVerified.WithLabelValues("valid").Inc()
	return claims, nil
}

func (a *Authority) verify(tokenString string) (map[string]any, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errdefs.New(errdefs.CodeInvalidToken, "token header carries no kid")
		}
		pair, ok := a.ring.Get(kid)
		if !ok {
			return nil, errdefs.Newf(errdefs.CodeUnknownKid, "unknown kid %q", kid)
		}
		return pair.Public, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	if err != nil {
		var coded *errdefs.Error
		switch {
		case errors.As(err, &coded):
			return nil, coded
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, errdefs.New(errdefs.CodeTokenExpired, "token expired")
		default:
			return nil, errdefs.Newf(errdefs.CodeInvalidToken, "token verification failed: %v", err)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errdefs.New(errdefs.CodeInvalidToken, "token carries no claims")
	}
	return claims, nil
}

// JWK is one JWKS entry carrying the public PEM
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	PEM string `json:"pem"`
}

// JWKS is the exported key set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS exports every public key in the ring
func (a *Authority) JWKS() JWKS {
	pairs := a.ring.Pairs()
	out := JWKS{Keys: make([]JWK, 0, len(pairs))}
	for _, pair := range pairs {
		out.Keys = append(out.Keys, JWK{
			Kid: pair.Kid,
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			PEM: pair.PublicPEM,
		})
	}
	return out
}

// PublicKey returns the current signing kid and its public PEM
func (a *Authority) PublicKey() (kid, publicPEM string, err error) {
	pair := a.ring.Current()
	if pair == nil {
		return "", "", errdefs.New(errdefs.CodeKeysUnavailable, "no signing key in ring")
	}
	return pair.Kid, pair.PublicPEM, nil
}
