//go:build integration

package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/pkg/testutil/containers"
)

func TestLock_ExcludesConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := New(rc.Client, time.Minute)

	require.NoError(t, l.Acquire(ctx, "run-1"))
	err := l.Acquire(ctx, "run-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeld)

	// A stale holder cannot release the current lease.
	require.NoError(t, l.Release(ctx, "run-2"))
	assert.ErrorIs(t, l.Acquire(ctx, "run-3"), ErrHeld)

	// The owner can, after which the next run proceeds.
	require.NoError(t, l.Release(ctx, "run-1"))
	assert.NoError(t, l.Acquire(ctx, "run-3"))
}

func TestLock_TTLExpiresLease(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(ctx))

	l := New(rc.Client, time.Second)
	require.NoError(t, l.Acquire(ctx, "run-1"))

	require.Eventually(t, func() bool {
		return l.Acquire(ctx, "run-2") == nil
	}, 5*time.Second, 200*time.Millisecond, "lease should lapse after its TTL")
}
