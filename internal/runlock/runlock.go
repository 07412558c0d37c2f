// Package runlock serializes sync runs across deployments with a Redis
// lease. Two concurrent runs would break the single-writer invariant the
// batch writer relies on, so a second run refuses to start while the lease
// is held. With no Redis configured the lock degrades to a no-op and
// single-flight is the operator's responsibility.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKey = "scoresync:run-lock"

// ErrHeld reports that another run currently holds the lease.
var ErrHeld = fmt.Errorf("another sync run holds the lock")

// Cmdable is the slice of the redis client the lock needs.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Lock is a single-holder lease keyed by run id.
type Lock struct {
	client Cmdable
	ttl    time.Duration
}

// New builds a Lock. A nil client yields a no-op lock.
func New(client Cmdable, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire takes the lease for runID. Returns ErrHeld when another run id
// holds it. The TTL bounds how long a crashed run can block its successors.
func (l *Lock) Acquire(ctx context.Context, runID string) error {
	if l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, lockKey, runID, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, lockKey).Result()
		return fmt.Errorf("%w (held by %s)", ErrHeld, holder)
	}
	return nil
}

// releaseScript deletes the lease only when this run still holds it, so a
// run that outlived its TTL cannot release a successor's lease.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Release drops the lease if runID still owns it.
func (l *Lock) Release(ctx context.Context, runID string) error {
	if l.client == nil {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{lockKey}, runID).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
