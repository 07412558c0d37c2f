package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_NilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	l := New(nil, time.Hour)

	assert.NoError(t, l.Acquire(ctx, "run-1"))
	assert.NoError(t, l.Acquire(ctx, "run-2"), "no client means no exclusion")
	assert.NoError(t, l.Release(ctx, "run-1"))
}

func TestNew_DefaultsTTL(t *testing.T) {
	l := New(nil, 0)
	assert.Equal(t, 2*time.Hour, l.ttl)
}
