//go:build unix

package xatomic

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
)

func TestSignalHooks_RealSignal(t *testing.T) {
	h, redelivered := newTestHooks(t, WithSignals(unix.SIGUSR1))

	released := make(chan struct{})
	deregister := h.Register(func(context.Context) { close(released) })
	defer deregister()

	assert.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("hook not run on signal")
	}
	select {
	case sig := <-redelivered:
		assert.Equal(t, os.Signal(unix.SIGUSR1), sig)
	case <-time.After(time.Second):
		t.Fatal("signal not redelivered")
	}
}

func TestSignalHooks_AppSubscriberKeepsProcessAlive(t *testing.T) {
	// 应用自己处理 SIGUSR1 做优雅退出
	appCh := make(chan os.Signal, 4)
	signal.Notify(appCh, unix.SIGUSR1)
	defer signal.Stop(appCh)

	h := NewSignalHooks(
		WithSignals(unix.SIGUSR1),
		WithRedelivery(false),
		WithHookTimeout(2*time.Second),
		WithHookLogger(xlog.Discard()),
	)
	lock := &extLock{}

	started := make(chan struct{})
	go func() {
		<-started
		_ = unix.Kill(unix.Getpid(), unix.SIGUSR1)
	}()

	_, err := Do(context.Background(), lock, func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-ctx.Done():
			return 0, context.Cause(ctx)
		case <-time.After(5 * time.Second):
			return 0, nil
		}
	}, WithLogger(xlog.Discard()), WithHookRegistry(h))
	require.ErrorIs(t, err, ErrInterrupted)
	assert.NotErrorIs(t, err, ErrLockLost, "work 结束后才释放")
	assert.Equal(t, int32(1), lock.unlocks.Load())

	select {
	case <-appCh:
	case <-time.After(time.Second):
		t.Fatal("app did not receive signal")
	}
	select {
	case <-appCh:
		t.Fatal("signal delivered twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignalHooks_IgnoredSignalNotWatched(t *testing.T) {
	signal.Ignore(unix.SIGUSR2)
	defer signal.Reset(unix.SIGUSR2)

	h, redelivered := newTestHooks(t, WithSignals(unix.SIGUSR2))
	var ran atomic.Bool
	deregister := h.Register(func(context.Context) { ran.Store(true) })
	defer deregister()

	assert.True(t, signal.Ignored(unix.SIGUSR2), "注册钩子不能取消忽略")
	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR2))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
	select {
	case <-redelivered:
		t.Fatal("ignored signal redelivered")
	default:
	}
}
