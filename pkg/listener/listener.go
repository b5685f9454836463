package listener

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/log"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription channel closed")

// Listener subscribes to the backend's cache channel and reloads both entity
// caches on every published change. It is an eager-refresh optimization;
// consistency does not depend on it because read paths re-check the system
// stamps themselves.
type Listener struct {
	backend *backend.Adapter
	cache   *cache.Cache
	logger  zerolog.Logger
}

// New creates a listener over the backend and cache
func New(b *backend.Adapter, c *cache.Cache) *Listener {
	return &Listener{
		backend: b,
		cache:   c,
		logger:  log.WithComponent("listener"),
	}
}

// Run blocks consuming cache events until the context is cancelled. If the
// backend is unavailable at startup the listener does not run. A dropped
// subscription reconnects with exponential backoff.
func (l *Listener) Run(ctx context.Context) {
	if !l.backend.Available(ctx) {
		l.logger.Warn().Msg("backend unavailable, change listener not started")
		return
	}

	backoff := initialBackoff
	for {
		if err := l.consume(ctx); err == nil {
			return
		}

		l.logger.Warn().Dur("backoff", backoff).Msg("cache subscription dropped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume drains one subscription. Returns nil on context cancellation and
// an error when the channel closes underneath us.
func (l *Listener) consume(ctx context.Context) error {
	sub := l.backend.Subscribe(ctx)
	defer sub.Close()

	l.logger.Info().Msg("change listener subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			l.logger.Debug().Str("payload", msg.Payload).Msg("cache event received")
			l.cache.ReloadServices(ctx)
			l.cache.ReloadWorkspaces(ctx)
		}
	}
}
