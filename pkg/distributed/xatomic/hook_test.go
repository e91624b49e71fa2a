package xatomic

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
)

func newTestHooks(t *testing.T, opts ...SignalHooksOption) (*SignalHooks, <-chan os.Signal) {
	t.Helper()
	h := NewSignalHooks(append([]SignalHooksOption{WithHookLogger(xlog.Discard())}, opts...)...)
	redelivered := make(chan os.Signal, 1)
	h.SetRedeliver(func(sig os.Signal) { redelivered <- sig })
	return h, redelivered
}

func TestSignalHooks_ListenOnlyWhileRegistered(t *testing.T) {
	h, _ := newTestHooks(t)
	assert.False(t, h.Listening())

	d1 := h.Register(func(context.Context) {})
	d2 := h.Register(func(context.Context) {})
	assert.True(t, h.Listening())
	assert.Equal(t, 2, h.Len())

	d1()
	d1()
	assert.Equal(t, 1, h.Len(), "重复注销无副作用")
	assert.True(t, h.Listening())

	d2()
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.Listening())

	d3 := h.Register(func(context.Context) {})
	assert.True(t, h.Listening())
	d3()
	assert.False(t, h.Listening())
}

func TestSignalHooks_NilHook(t *testing.T) {
	h, _ := newTestHooks(t)
	deregister := h.Register(nil)
	assert.False(t, h.Listening())
	deregister()
}

func TestSignalHooks_FireRunsHooksAndRedelivers(t *testing.T) {
	h, redelivered := newTestHooks(t, WithHookTimeout(time.Second))

	var (
		mu        sync.Mutex
		deadlines []bool
	)
	record := func(ctx context.Context) {
		_, ok := ctx.Deadline()
		mu.Lock()
		deadlines = append(deadlines, ok)
		mu.Unlock()
	}
	d1 := h.Register(record)
	d2 := h.Register(func(context.Context) { panic("hook panic") })
	d3 := h.Register(record)

	h.Trigger(os.Interrupt)
	select {
	case sig := <-redelivered:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(time.Second):
		t.Fatal("signal not redelivered")
	}

	mu.Lock()
	assert.Equal(t, []bool{true, true}, deadlines, "panic 不影响其他钩子")
	mu.Unlock()
	assert.False(t, h.Listening())

	d1()
	d2()
	d3()
	assert.Equal(t, 0, h.Len())
}

func TestSignalHooks_HookTimeout(t *testing.T) {
	h, redelivered := newTestHooks(t, WithHookTimeout(20*time.Millisecond))

	var expired atomic.Bool
	deregister := h.Register(func(ctx context.Context) {
		<-ctx.Done()
		expired.Store(true)
	})
	defer deregister()

	h.Trigger(os.Interrupt)
	select {
	case <-redelivered:
	case <-time.After(time.Second):
		t.Fatal("hook timeout not enforced")
	}
	assert.True(t, expired.Load())
}

func TestSignalHooks_WithAtomic(t *testing.T) {
	h, redelivered := newTestHooks(t)
	lock := newMockLock(t)
	lock.EXPECT().TryLock(gomock.Any()).Return(true, nil)
	lock.EXPECT().Unlock(gomock.Any()).Return(nil).Times(1)

	_, err := Do(context.Background(), lock, func(ctx context.Context) (int, error) {
		h.Trigger(os.Interrupt)
		<-ctx.Done()
		return 0, context.Cause(ctx)
	}, WithLogger(xlog.Discard()), WithHookRegistry(h))
	require.ErrorIs(t, err, ErrInterrupted)
	assert.NotErrorIs(t, err, ErrLockLost)

	select {
	case sig := <-redelivered:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(time.Second):
		t.Fatal("signal not redelivered")
	}
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.Listening())
}

func TestSignalHooks_WithoutRedelivery(t *testing.T) {
	h, redelivered := newTestHooks(t, WithRedelivery(false))

	ran := make(chan struct{})
	deregister := h.Register(func(context.Context) { close(ran) })
	defer deregister()

	h.Trigger(os.Interrupt)
	<-ran
	require.Eventually(t, func() bool { return !h.Listening() }, time.Second, 5*time.Millisecond)
	select {
	case <-redelivered:
		t.Fatal("signal redelivered")
	default:
	}
}

func TestNopHooks(t *testing.T) {
	called := false
	deregister := NopHooks.Register(func(context.Context) { called = true })
	deregister()
	assert.False(t, called)
}

func TestDefaultHooks(t *testing.T) {
	assert.Same(t, DefaultHooks(), DefaultHooks())
}
