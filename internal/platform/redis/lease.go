package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/traqcheck/bgv-agent/internal/task"
)

// Lease is a task.Lease backed by SET NX PX. Only one process runs a reminder
// sweep pass at a time; the TTL frees the lease if its holder dies.
type Lease struct {
	client *Client
	logger *slog.Logger
}

// NewLease creates a Lease.
func NewLease(client *Client, logger *slog.Logger) *Lease {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lease{client: client, logger: logger.With("component", "redis_lease")}
}

// Acquire takes the named lease or returns task.ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	k := leaseKey(name)
	token, ok, err := l.client.tryAcquire(ctx, k, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, task.ErrLeaseHeld
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.client.release(releaseCtx, k, token); err != nil {
			l.logger.Warn("failed to release lease", "lease", name, "error", err)
		}
	}, nil
}

var _ task.Lease = (*Lease)(nil)
