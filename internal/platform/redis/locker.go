package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/traqcheck/bgv-agent/internal/audit"
)

// LockerConfig tunes the distributed audit lock.
type LockerConfig struct {
	// TTL bounds how long a crashed holder blocks the key.
	TTL time.Duration

	// PollInterval is the wait between acquisition attempts.
	PollInterval time.Duration
}

// DefaultLockerConfig returns the lock settings used by the server.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:          30 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Locker is an audit.Locker backed by SET NX PX. It serializes amendments of
// one audit entry across processes.
type Locker struct {
	client *Client
	config LockerConfig
	logger *slog.Logger
}

// NewLocker creates a Locker.
func NewLocker(client *Client, config LockerConfig, logger *slog.Logger) *Locker {
	defaults := DefaultLockerConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client: client,
		config: config,
		logger: logger.With("component", "redis_locker"),
	}
}

// Lock polls until the key is acquired or ctx ends.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	k := lockKey(key)
	for {
		token, ok, err := l.client.tryAcquire(ctx, k, l.config.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// The caller's ctx may already be done.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := l.client.release(releaseCtx, k, token); err != nil {
					l.logger.Warn("failed to release lock", "key", key, "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.config.PollInterval):
		}
	}
}

var _ audit.Locker = (*Locker)(nil)
