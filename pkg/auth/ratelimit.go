package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/metrics"
)

// Rate-limit buckets
const (
	BucketAdmin     = "admin"
	BucketIssue     = "issue"
	BucketDiscovery = "discovery"
)

// Limiter enforces fixed-window counters in the backend. A down backend
// fails open: during an outage the bridge keeps serving rather than turning
// a backend failure into a total denial of service.
type Limiter struct {
	backend *backend.Adapter
	window  time.Duration
	logger  zerolog.Logger
}

// NewLimiter creates a limiter with one-minute windows
func NewLimiter(b *backend.Adapter) *Limiter {
	return &Limiter{
		backend: b,
		window:  time.Minute,
		logger:  log.WithComponent("ratelimit"),
	}
}

// Allow bumps the (bucket, principal) counter for the current window and
// fails with RATE_LIMITED once the count exceeds the limit. The retry hint
// is the window's remaining TTL.
func (l *Limiter) Allow(ctx context.Context, bucket, principal string, limit int) error {
	if limit <= 0 {
		return nil
	}
	count, ttl, err := l.backend.RateIncr(ctx, bucket, principal, l.window)
	if err != nil {
		l.logger.Warn().Err(err).Str("bucket", bucket).Msg("rate-limit backend unavailable, failing open")
		return nil
	}
	if count > int64(limit) {
		metrics.RateLimited.WithLabelValues(bucket).Inc()
		retry := int(ttl.Seconds())
		if retry < 1 {
			retry = 1
		}
		return errdefs.RateLimited(limit, int(l.window.Seconds()), retry)
	}
	return nil
}
