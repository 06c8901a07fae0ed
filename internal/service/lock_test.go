package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, 42)
	assert.ErrorIs(t, err, ErrSubjectBusy)

	other, err := locker.Acquire(ctx, 43)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredHolderDoesNotReleaseNewLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Second, zap.NewNop())
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)

	stale()
	_, err = locker.Acquire(ctx, 1)
	assert.ErrorIs(t, err, ErrSubjectBusy)

	fresh()
}

func TestRedisLocker_RefreshesWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ttl := 60 * time.Millisecond
	locker := NewRedisLocker(client, ttl, zap.NewNop())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)

	// each step outlives the original TTL in total; only refreshes keep it
	for i := 0; i < 5; i++ {
		time.Sleep(50 * time.Millisecond)
		mr.FastForward(40 * time.Millisecond)
		require.True(t, mr.Exists("coverly:lock:subject:7"), "lock lost after step %d", i)
	}

	_, err = locker.Acquire(ctx, 7)
	assert.ErrorIs(t, err, ErrSubjectBusy)

	release()
	assert.False(t, mr.Exists("coverly:lock:subject:7"))

	// a released lock is not refreshed back into existence
	time.Sleep(50 * time.Millisecond)
	assert.False(t, mr.Exists("coverly:lock:subject:7"))
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, 1)
	assert.ErrorIs(t, err, ErrSubjectBusy)

	release()
	release, err = locker.Acquire(ctx, 1)
	require.NoError(t, err)
	release()
}
