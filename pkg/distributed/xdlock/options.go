package xdlock

import (
	"context"
	"strings"
	"time"
)

// maxKeyLength key 最大字节数（不含前缀）
const maxKeyLength = 512

const (
	defaultKeyPrefix  = "lock:"
	defaultExpiry     = 8 * time.Second
	defaultTries      = 32
	defaultRetryDelay = 200 * time.Millisecond
	defaultEtcdTTL    = 60
)

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// MutexOption 单次加锁的配置
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	keyPrefix      string
	expiry         time.Duration
	tries          int
	retryDelay     time.Duration
	retryDelayFunc func(tries int) time.Duration
	driftFactor    float64
	timeoutFactor  float64
	genValueFunc   func() (string, error)
	failFast       bool
	shufflePools   bool
}

func defaultMutexOptions() *mutexOptions {
	return &mutexOptions{
		keyPrefix:     defaultKeyPrefix,
		expiry:        defaultExpiry,
		tries:         defaultTries,
		retryDelay:    defaultRetryDelay,
		driftFactor:   0.01,
		timeoutFactor: 0.05,
	}
}

func applyMutexOptions(opts []MutexOption) *mutexOptions {
	o := defaultMutexOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithKeyPrefix 设置 key 前缀，最终 key = prefix + key。默认 "lock:"。
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) {
		o.keyPrefix = prefix
	}
}

// WithExpiry 设置锁 TTL，默认 8s。etcd 后端的 TTL 由 Session 决定，此项无效。
func WithExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithTries Lock 的最大尝试次数，默认 32。
func WithTries(n int) MutexOption {
	return func(o *mutexOptions) {
		if n > 0 {
			o.tries = n
		}
	}
}

// WithRetryDelay Lock 两次尝试之间的等待，默认 200ms。
func WithRetryDelay(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithRetryDelayFunc 自定义 Lock 的重试等待，tries 从 1 开始。
func WithRetryDelayFunc(fn func(tries int) time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if fn != nil {
			o.retryDelayFunc = fn
		}
	}
}

// WithDriftFactor Redlock 时钟漂移因子，默认 0.01，必须 > 0。
func WithDriftFactor(f float64) MutexOption {
	return func(o *mutexOptions) {
		if f > 0 {
			o.driftFactor = f
		}
	}
}

// WithTimeoutFactor Redlock 单节点超时因子，默认 0.05，必须 > 0。
func WithTimeoutFactor(f float64) MutexOption {
	return func(o *mutexOptions) {
		if f > 0 {
			o.timeoutFactor = f
		}
	}
}

// WithGenValueFunc 自定义锁值（所有者标识）生成，值必须全局唯一。
func WithGenValueFunc(fn func() (string, error)) MutexOption {
	return func(o *mutexOptions) {
		if fn != nil {
			o.genValueFunc = fn
		}
	}
}

// WithFailFast Redlock 任一节点失败立即返回
func WithFailFast(b bool) MutexOption {
	return func(o *mutexOptions) {
		o.failFast = b
	}
}

// WithShufflePools 每次获取前打乱 Redis 节点顺序
func WithShufflePools(b bool) MutexOption {
	return func(o *mutexOptions) {
		o.shufflePools = b
	}
}

func (o *mutexOptions) delayFor(tries int) time.Duration {
	if o.retryDelayFunc != nil {
		return o.retryDelayFunc(tries)
	}
	return o.retryDelay
}

// EtcdFactoryOption etcd 工厂配置
type EtcdFactoryOption func(*etcdFactoryOptions)

type etcdFactoryOptions struct {
	ttl int
	ctx context.Context
}

// WithEtcdTTL Session TTL（秒），默认 60。决定进程崩溃后锁最长残留多久。
func WithEtcdTTL(ttl int) EtcdFactoryOption {
	return func(o *etcdFactoryOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithEtcdContext Session 上下文，取消后 Session 关闭，其上的锁全部失效。
func WithEtcdContext(ctx context.Context) EtcdFactoryOption {
	return func(o *etcdFactoryOptions) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}
