package xatomic

import (
	"context"
	"time"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
	"github.com/omeyang/xatomic/pkg/observability/xmetrics"
	"github.com/omeyang/xatomic/pkg/resilience/xretry"
)

// Option 配置 Atomic。
type Option func(*options)

type options struct {
	maxWait        time.Duration
	backoff        xretry.BackoffPolicy
	random         Random
	sleep          func(ctx context.Context, d time.Duration) error
	clock          func() time.Time
	logger         xlog.Logger
	observer       xmetrics.Observer
	hooks          HookRegistry
	retryer        *xretry.Retryer
	releaseTimeout time.Duration
	keepAlive      time.Duration
}

func defaultOptions() options {
	return options{
		maxWait:        DefaultMaxWait,
		sleep:          sleepContext,
		clock:          time.Now,
		releaseTimeout: DefaultReleaseTimeout,
	}
}

func applyOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.maxWait <= 0 {
		return o, ErrInvalidMaxWait
	}
	if o.backoff == nil {
		o.backoff = NewBackoff(o.random)
	}
	if o.logger == nil {
		o.logger = xlog.Default().With(xlog.Component("xatomic"))
	}
	if o.observer == nil {
		o.observer = xmetrics.NoopObserver{}
	}
	if o.hooks == nil {
		o.hooks = DefaultHooks()
	}
	return o, nil
}

// WithMaxWait 设置最长等待时间，默认 [DefaultMaxWait]。
// d <= 0 时 New 返回 [ErrInvalidMaxWait]。
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		o.maxWait = d
	}
}

// WithBackoff 替换退避策略，nil 时忽略。
func WithBackoff(b xretry.BackoffPolicy) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithRandom 设置默认退避使用的随机源。设置了 WithBackoff 时不生效。
func WithRandom(r Random) Option {
	return func(o *options) {
		o.random = r
	}
}

// WithSleep 替换重试间的等待函数。fn 应在 ctx 取消时尽快返回 ctx.Err()。
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithClock 替换计算等待时长使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLogger 设置日志器，默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver 设置观测器，每次 Run 产生一个跨度。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithHookRegistry 设置崩溃保护钩子的注册表，默认 [DefaultHooks]。
// 传入 [NopHooks] 可关闭信号释放。
func WithHookRegistry(h HookRegistry) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = h
		}
	}
}

// WithAcquireRetryer 让 TryLock 的错误按 r 的策略重试。
// 重试用尽后 Run 返回 [ErrAcquire]。锁被占用不算错误，不经过 r。
func WithAcquireRetryer(r *xretry.Retryer) Option {
	return func(o *options) {
		o.retryer = r
	}
}

// WithReleaseTimeout 设置单次 Unlock 的超时，d <= 0 时忽略。
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}

// WithKeepAlive 持锁期间每隔 interval 调用一次 [Extender.Extend]，
// 用于执行时间可能超过锁过期时间的 work。interval 通常取过期时间的 1/3。
// 续期失败时取消 work 的 ctx，Run 返回 [ErrLockLost]。
// d <= 0 关闭续期（默认）；lock 未实现 Extender 时 New 返回 [ErrKeepAliveUnsupported]。
func WithKeepAlive(interval time.Duration) Option {
	return func(o *options) {
		o.keepAlive = interval
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
