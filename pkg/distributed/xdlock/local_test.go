package xdlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLocalWithClock() (*localFactory, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := NewLocalFactory().(*localFactory)
	f.now = clock.Now
	return f, clock
}

func TestLocalFactory_TryLockUnlock(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	h, err := f.TryLock(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "lock:jobs", h.Key())

	busy, err := f.TryLock(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, busy)

	other, err := f.TryLock(ctx, "jobs", WithKeyPrefix("other:"))
	require.NoError(t, err)
	require.NotNil(t, other, "不同前缀是不同的锁")

	require.NoError(t, h.Unlock(ctx))
	assert.ErrorIs(t, h.Unlock(ctx), ErrNotLocked)
	require.NoError(t, other.Unlock(ctx))
}

func TestLocalFactory_ExpiryAndOwnership(t *testing.T) {
	f, clock := newLocalWithClock()
	ctx := context.Background()

	h1, err := f.TryLock(ctx, "exp", WithExpiry(time.Second))
	require.NoError(t, err)
	require.NotNil(t, h1)

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, h1.Extend(ctx))
	clock.Advance(900 * time.Millisecond)

	busy, err := f.TryLock(ctx, "exp")
	require.NoError(t, err)
	assert.Nil(t, busy, "续期后仍未过期")

	clock.Advance(200 * time.Millisecond)
	h2, err := f.TryLock(ctx, "exp")
	require.NoError(t, err)
	require.NotNil(t, h2, "过期后可被他人获取")

	assert.ErrorIs(t, h1.Unlock(ctx), ErrNotLocked)
	assert.ErrorIs(t, h1.Extend(ctx), ErrNotLocked)
	require.NoError(t, h2.Unlock(ctx))
}

func TestLocalFactory_LockWakesOnRelease(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	h, err := f.TryLock(ctx, "wake")
	require.NoError(t, err)
	require.NotNil(t, h)

	var g errgroup.Group
	g.Go(func() error {
		h2, err := f.Lock(ctx, "wake", WithTries(2), WithRetryDelay(time.Minute))
		if err != nil {
			return err
		}
		return h2.Unlock(ctx)
	})

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.Unlock(ctx))
	require.NoError(t, g.Wait())
}

func TestLocalFactory_LockExhausted(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	h, err := f.TryLock(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = f.Lock(ctx, "busy", WithTries(3), WithRetryDelayFunc(func(int) time.Duration {
		return time.Millisecond
	}))
	assert.ErrorIs(t, err, ErrLockFailed)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.Lock(cctx, "busy", WithRetryDelay(time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalFactory_MutualExclusion(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		total   int
	)
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for range 20 {
				h, err := f.Lock(ctx, "shared", WithRetryDelay(time.Millisecond), WithTries(10_000))
				if err != nil {
					return err
				}
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				total++
				mu.Unlock()

				time.Sleep(100 * time.Microsecond)

				mu.Lock()
				inside--
				mu.Unlock()
				if err := h.Unlock(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 160, total)
}

func TestLocalFactory_ClosedAndValidation(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	_, err := f.TryLock(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.TryLock(cctx, "x")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, f.Health(ctx))
	require.NoError(t, f.Close(ctx))
	_, err = f.TryLock(ctx, "x")
	assert.ErrorIs(t, err, ErrFactoryClosed)
	_, err = f.Lock(ctx, "x")
	assert.ErrorIs(t, err, ErrFactoryClosed)
	assert.ErrorIs(t, f.Health(ctx), ErrFactoryClosed)
}
