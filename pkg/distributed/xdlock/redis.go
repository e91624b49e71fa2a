package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisFactory struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	closed  atomic.Bool
}

// NewRedisFactory 创建 Redis 锁工厂。
// 单个客户端为标准 Redis 锁，多个客户端使用 Redlock（需过半节点成功）。
// 客户端生命周期由调用方管理，Close 不会关闭它们。
func NewRedisFactory(clients ...redis.UniversalClient) (Factory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilClient, i)
		}
		pools[i] = goredis.NewPool(client)
	}
	return &redisFactory{
		clients: clients,
		rs:      redsync.New(pools...),
	}, nil
}

func (f *redisFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	// tries=1 才能让 redsync 返回本次尝试的真实错误（ErrTaken 或节点错误）
	mutex, fullKey, err := f.newMutex(key, append(opts[:len(opts):len(opts)], WithTries(1)))
	if err != nil {
		return nil, err
	}
	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}
	return &redisHandle{mutex: mutex, key: fullKey}, nil
}

func (f *redisFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	mutex, fullKey, err := f.newMutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := mutex.LockContext(ctx); err != nil {
		// redsync 重试耗尽时不透传 ctx 错误
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
		}
		return nil, err
	}
	return &redisHandle{mutex: mutex, key: fullKey}, nil
}

func (f *redisFactory) newMutex(key string, opts []MutexOption) (*redsync.Mutex, string, error) {
	if f.closed.Load() {
		return nil, "", ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	o := applyMutexOptions(opts)
	fullKey := o.keyPrefix + key

	genValue := o.genValueFunc
	if genValue == nil {
		genValue = func() (string, error) { return uuid.NewString(), nil }
	}
	rsOpts := []redsync.Option{
		redsync.WithExpiry(o.expiry),
		redsync.WithTries(o.tries),
		redsync.WithRetryDelayFunc(o.delayFor),
		redsync.WithDriftFactor(o.driftFactor),
		redsync.WithTimeoutFactor(o.timeoutFactor),
		redsync.WithGenValueFunc(genValue),
		redsync.WithFailFast(o.failFast),
		redsync.WithShufflePools(o.shufflePools),
	}
	return f.rs.NewMutex(fullKey, rsOpts...), fullKey, nil
}

func (f *redisFactory) Close(_ context.Context) error {
	f.closed.Store(true)
	return nil
}

// Health 对所有节点执行 PING。
func (f *redisFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	var errs []error
	for i, client := range f.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("xdlock: redis node %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

type redisHandle struct {
	mutex *redsync.Mutex
	key   string
}

// Unlock 在工厂关闭后仍可调用，避免锁残留到 TTL 到期。
func (h *redisHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return handleResult(ok, err)
}

func (h *redisHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	return handleResult(ok, err)
}

func (h *redisHandle) Key() string {
	return h.key
}

func handleResult(ok bool, err error) error {
	if err != nil {
		err = wrapRedisError(err)
		// 已过期或被他人持有都意味着所有权丢失
		if errors.Is(err, ErrLockExpired) || errors.Is(err, ErrLockHeld) {
			return ErrNotLocked
		}
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// wrapRedisError 把 redsync 错误映射到 xdlock 错误，保留原始错误链。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}
	switch {
	case errors.Is(err, redsync.ErrLockAlreadyExpired):
		return fmt.Errorf("%w: %w", ErrLockExpired, err)
	case errors.Is(err, redsync.ErrExtendFailed):
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	case errors.Is(err, redsync.ErrFailed):
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	return err
}
