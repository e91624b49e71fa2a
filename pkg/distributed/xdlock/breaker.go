package xdlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerName     = "xdlock"
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// BreakerOption 熔断配置
type BreakerOption func(*gobreaker.Settings, *uint32)

// WithBreakerName 熔断器名称，出现在状态变化回调中
func WithBreakerName(name string) BreakerOption {
	return func(st *gobreaker.Settings, _ *uint32) {
		if name != "" {
			st.Name = name
		}
	}
}

// WithBreakerFailures 连续失败多少次后熔断，默认 5。
func WithBreakerFailures(n uint32) BreakerOption {
	return func(_ *gobreaker.Settings, failures *uint32) {
		if n > 0 {
			*failures = n
		}
	}
}

// WithBreakerTimeout 打开状态持续多久后进入半开，默认 30s。
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(st *gobreaker.Settings, _ *uint32) {
		if d > 0 {
			st.Timeout = d
		}
	}
}

// WithBreakerHalfOpenRequests 半开状态允许通过的探测请求数，默认 1。
func WithBreakerHalfOpenRequests(n uint32) BreakerOption {
	return func(st *gobreaker.Settings, _ *uint32) {
		st.MaxRequests = n
	}
}

// WithBreakerStateChange 状态变化回调
func WithBreakerStateChange(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(st *gobreaker.Settings, _ *uint32) {
		st.OnStateChange = fn
	}
}

// BreakerFactory 带熔断的 Factory
type BreakerFactory struct {
	inner Factory
	cb    *gobreaker.CircuitBreaker[LockHandle]
}

// WithBreaker 用熔断器包装 factory 的 TryLock/Lock。
//
// 锁被占用不算失败；参数错误、工厂关闭与 ctx 结束不计入统计。
// 已获取 handle 的 Unlock/Extend 不经过熔断器，释放总会被尝试。
func WithBreaker(factory Factory, opts ...BreakerOption) (*BreakerFactory, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	failures := uint32(defaultBreakerFailures)
	st := gobreaker.Settings{
		Name:    defaultBreakerName,
		Timeout: defaultBreakerTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&st, &failures)
		}
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= failures
	}
	st.IsExcluded = excludedFromBreaker
	return &BreakerFactory{
		inner: factory,
		cb:    gobreaker.NewCircuitBreaker[LockHandle](st),
	}, nil
}

// TryLock 经熔断器调用内层 TryLock，锁被占用不计为失败。
func (f *BreakerFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	return f.execute(func() (LockHandle, error) {
		return f.inner.TryLock(ctx, key, opts...)
	})
}

// Lock 经熔断器调用内层 Lock。
func (f *BreakerFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	return f.execute(func() (LockHandle, error) {
		return f.inner.Lock(ctx, key, opts...)
	})
}

func (f *BreakerFactory) execute(fn func() (LockHandle, error)) (LockHandle, error) {
	handle, err := f.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return handle, err
}

// Close 关闭内层工厂。
func (f *BreakerFactory) Close(ctx context.Context) error {
	return f.inner.Close(ctx)
}

// Health 透传内层健康检查，不经过熔断器。
func (f *BreakerFactory) Health(ctx context.Context) error {
	return f.inner.Health(ctx)
}

// State 当前熔断状态
func (f *BreakerFactory) State() gobreaker.State {
	return f.cb.State()
}

func excludedFromBreaker(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrKeyTooLong) ||
		errors.Is(err, ErrFactoryClosed) ||
		errors.Is(err, ErrLockFailed)
}
