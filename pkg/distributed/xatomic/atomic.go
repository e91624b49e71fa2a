package xatomic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
	"github.com/omeyang/xatomic/pkg/observability/xmetrics"
	"github.com/omeyang/xatomic/pkg/resilience/xretry"
)

// Atomic 在锁保护下执行 work。
//
// Atomic 自身不保存运行状态，可以多次调用 Run，每次相互独立。
// 同一个 Atomic 并发调用 Run 时，互斥由 lock 的实现决定。
type Atomic[T any] struct {
	work Work[T]
	lock Lock
	opts options
}

// New 创建 Atomic。
func New[T any](work Work[T], lock Lock, opts ...Option) (*Atomic[T], error) {
	if work == nil {
		return nil, ErrNilWork
	}
	if lock == nil {
		return nil, ErrNilLock
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.keepAlive > 0 {
		if _, ok := lock.(Extender); !ok {
			return nil, ErrKeepAliveUnsupported
		}
	}
	return &Atomic[T]{work: work, lock: lock, opts: o}, nil
}

// Do 创建 Atomic 并执行一次。
func Do[T any](ctx context.Context, lock Lock, work Work[T], opts ...Option) (T, error) {
	a, err := New(work, lock, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return a.Run(ctx)
}

// MaxWait 返回最长等待时间
func (a *Atomic[T]) MaxWait() time.Duration {
	return a.opts.maxWait
}

// String 返回 "atomic(<锁标识>)"，用于日志。
func (a *Atomic[T]) String() string {
	return "atomic(" + a.lock.String() + ")"
}

// Run 获取锁、执行 work、释放锁。
//
// 返回值：
//   - 锁在 maxWait 内未空闲：[*StaleLockError]
//   - TryLock 出错：[*AcquireError]，ctx 取消时返回 ctx.Err()
//   - work 出错：原样返回 work 的错误
//   - 释放失败：[*ReleaseError]，result 仍为 work 的结果
//   - work 返回前锁已丢失：[*LockLostError]
//
// work 收到的 ctx 在续期失败或持锁期间收到终止信号时被取消，
// 取消原因可用 context.Cause 取得。
// work panic 时锁先被释放，panic 继续向上传播。
func (a *Atomic[T]) Run(ctx context.Context) (result T, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		lock:     a.lock,
		name:     a.lock.String(),
		opts:     &a.opts,
		released: make(chan struct{}),
	}

	ctx, r.span = xmetrics.Start(ctx, a.opts.observer, xmetrics.SpanOptions{
		Component: "xatomic",
		Operation: "run",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("lock", r.name)},
	})
	defer func() {
		r.span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int("attempts", r.attempts),
			xmetrics.Duration("waited", r.waited),
		}})
	}()

	workCtx, cancelWork := context.WithCancelCause(ctx)
	defer cancelWork(nil)
	r.cancelWork = cancelWork

	deregister := a.opts.hooks.Register(r.onSignal)
	defer deregister()

	if err = r.acquire(ctx); err != nil {
		return result, err
	}

	stopKeepAlive := func() {}
	if ext, ok := a.lock.(Extender); ok && a.opts.keepAlive > 0 {
		stopKeepAlive = r.keepAlive(ctx, ext, cancelWork)
	}

	completed := false
	defer func() {
		stopKeepAlive()
		relErr := r.release(ctx)
		close(r.released)

		if lost := r.lostCause(); lost != nil {
			if relErr != nil {
				a.opts.logger.Warn(ctx, "release lost lock failed", xlog.Lock(r.name), xlog.Err(relErr))
			}
			if completed {
				err = &LockLostError{Lock: r.name, Err: lost, Work: err}
			}
			return
		}
		if relErr == nil {
			return
		}
		if !completed {
			// work panic 或调用了 runtime.Goexit，不能改写返回值
			a.opts.logger.Error(ctx, "release lock failed while unwinding",
				xlog.Lock(r.name), xlog.Err(relErr))
			return
		}
		a.opts.logger.Error(ctx, "release lock failed", xlog.Lock(r.name), xlog.Err(relErr))
		err = &ReleaseError{Lock: r.name, Err: relErr, Work: err}
	}()

	result, err = a.work(workCtx)
	completed = true
	return result, err
}

// run 单次 Run 的状态
type run struct {
	lock       Lock
	name       string
	opts       *options
	span       xmetrics.Span
	cancelWork context.CancelCauseFunc

	held     atomic.Bool
	released chan struct{} // 正常释放路径结束后关闭
	attempts int
	waited   time.Duration

	mu   sync.Mutex
	lost error
}

func (r *run) acquire(ctx context.Context) error {
	start := r.opts.clock()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := r.tryLock(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && isContextError(err) {
				return ctxErr
			}
			r.opts.logger.Warn(ctx, "try lock failed",
				xlog.Lock(r.name), xlog.Attempt(r.attempts), xlog.Err(err))
			return &AcquireError{Lock: r.name, Attempts: r.attempts, Err: err}
		}
		if ok {
			// TryLock 返回到这里之间收到信号的窗口内，钩子不会释放锁，锁依赖后端过期
			r.held.Store(true)
			r.waited = r.opts.clock().Sub(start)
			return nil
		}

		elapsed := r.opts.clock().Sub(start)
		if elapsed > r.opts.maxWait {
			r.waited = elapsed
			r.opts.logger.Warn(ctx, "lock is stale, giving up",
				xlog.Lock(r.name), xlog.Attempt(r.attempts), xlog.Elapsed(elapsed))
			return &StaleLockError{Lock: r.name, Attempts: r.attempts, Elapsed: elapsed}
		}

		r.attempts++
		delay := r.opts.backoff.NextDelay(r.attempts)
		r.opts.logger.Info(ctx, "lock is occupied, will retry",
			xlog.Lock(r.name), xlog.Attempt(r.attempts), xlog.Delay(delay))
		xmetrics.AddEvent(r.span, "lock.busy",
			xmetrics.Int("attempt", r.attempts),
			xmetrics.Duration("delay", delay),
		)
		if err := r.opts.sleep(ctx, delay); err != nil {
			r.waited = r.opts.clock().Sub(start)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

func (r *run) tryLock(ctx context.Context) (bool, error) {
	if r.opts.retryer == nil {
		return r.lock.TryLock(ctx)
	}
	return xretry.DoWithResult(ctx, r.opts.retryer, r.lock.TryLock)
}

// release 正常路径的释放。钩子已经释放过时什么也不做。
func (r *run) release(ctx context.Context) error {
	if !r.held.CompareAndSwap(true, false) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.releaseTimeout)
	defer cancel()
	return r.lock.Unlock(ctx)
}

// onSignal 持锁期间收到终止信号：先取消 work，等待正常路径释放；
// ctx 到期（钩子超时）仍未释放时直接释放，此后 work 不再受锁保护。
func (r *run) onSignal(ctx context.Context) {
	if !r.held.Load() {
		return
	}
	r.cancelWork(ErrInterrupted)

	select {
	case <-r.released:
		return
	case <-ctx.Done():
	}

	if !r.held.CompareAndSwap(true, false) {
		return
	}
	r.lose(ErrInterrupted)
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.releaseTimeout)
	defer cancel()
	if err := r.lock.Unlock(unlockCtx); err != nil {
		r.opts.logger.Error(ctx, "release lock on signal failed", xlog.Lock(r.name), xlog.Err(err))
		return
	}
	r.opts.logger.Warn(ctx, "lock released on signal while work still running", xlog.Lock(r.name))
}

// lose 记录锁丢失原因，只保留第一次。
func (r *run) lose(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost == nil {
		r.lost = cause
	}
}

func (r *run) lostCause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
