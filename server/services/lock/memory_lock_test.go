package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/lock"
)

func TestMemoryLock_AcquireExclusive(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	l := lock.NewMemoryLock(clk)

	value := models.NewLockValue("r1", "t1", clk.Now().Unix())
	acquired, err := l.Acquire(ctx, "k", value, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	other := models.NewLockValue("r2", "t2", clk.Now().Unix())
	acquired, err = l.Acquire(ctx, "k", other, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired, "a second holder must not acquire while the first is still live")
}

func TestMemoryLock_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	l := lock.NewMemoryLock(clk)

	value := models.NewLockValue("r1", "t1", clk.Now().Unix())
	_, err := l.Acquire(ctx, "k", value, time.Minute)
	require.NoError(t, err)

	clk.Add(2 * time.Minute)

	other := models.NewLockValue("r2", "t2", clk.Now().Unix())
	acquired, err := l.Acquire(ctx, "k", other, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "a holder can acquire once the previous holder's TTL has expired")
}

func TestMemoryLock_ChangeStateThenRelease(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	l := lock.NewMemoryLock(clk)

	doing := models.NewLockValue("r1", "t1", clk.Now().Unix())
	_, err := l.Acquire(ctx, "k", doing, time.Minute)
	require.NoError(t, err)

	committing := doing.Committing()
	require.NoError(t, l.ChangeState(ctx, "k", doing, committing))

	peeked, err := l.Peek(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, peeked)
	require.Equal(t, models.StageCommitting, peeked.Stage)

	require.NoError(t, l.Release(ctx, "k", doing, committing))
	peeked, err = l.Peek(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, peeked)
}

func TestMemoryLock_ChangeStateFailsAfterTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	l := lock.NewMemoryLock(clk)

	doing := models.NewLockValue("r1", "t1", clk.Now().Unix())
	_, err := l.Acquire(ctx, "k", doing, time.Minute)
	require.NoError(t, err)

	clk.Add(2 * time.Minute)

	err = l.ChangeState(ctx, "k", doing, doing.Committing())
	require.Error(t, err, "CAS must fail once the TTL window has elapsed")
}

func TestMemoryLock_PeekUnheldKey(t *testing.T) {
	ctx := context.Background()
	l := lock.NewMemoryLock(clock.NewMock())
	value, err := l.Peek(ctx, "nonexistent")
	require.NoError(t, err)
	require.Nil(t, value)
}
