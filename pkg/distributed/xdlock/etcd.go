package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

type etcdFactory struct {
	client  *clientv3.Client
	session *concurrency.Session
	closed  atomic.Bool
}

// NewEtcdFactory 创建 etcd 锁工厂。所有锁共享一个 Session（租约），
// 进程退出后锁最多在 TTL 秒后自动释放。client 由调用方关闭。
func NewEtcdFactory(client *clientv3.Client, opts ...EtcdFactoryOption) (Factory, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := &etcdFactoryOptions{ttl: defaultEtcdTTL, ctx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	session, err := concurrency.NewSession(client,
		concurrency.WithTTL(o.ttl),
		concurrency.WithContext(o.ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("xdlock: create etcd session: %w", err)
	}
	return &etcdFactory{client: client, session: session}, nil
}

func (f *etcdFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	mutex, fullKey, err := f.newMutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := mutex.TryLock(ctx); err != nil {
		err = wrapEtcdError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}
	return &etcdHandle{factory: f, mutex: mutex, key: fullKey}, nil
}

// Lock 阻塞等待 etcd 通知，而不是轮询。tries/retryDelay 对 etcd 无效。
func (f *etcdFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	mutex, fullKey, err := f.newMutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := mutex.Lock(ctx); err != nil {
		return nil, wrapEtcdError(err)
	}
	return &etcdHandle{factory: f, mutex: mutex, key: fullKey}, nil
}

func (f *etcdFactory) newMutex(key string, opts []MutexOption) (*concurrency.Mutex, string, error) {
	if err := f.checkSession(); err != nil {
		return nil, "", err
	}
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	fullKey := applyMutexOptions(opts).keyPrefix + key
	return concurrency.NewMutex(f.session, fullKey), fullKey, nil
}

func (f *etcdFactory) checkSession() error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	select {
	case <-f.session.Done():
		return ErrSessionExpired
	default:
		return nil
	}
}

// Close 撤销 Session 租约，租约上的锁随之释放。
func (f *etcdFactory) Close(ctx context.Context) error {
	if f.closed.Swap(true) {
		return nil
	}
	// Session.Close 内部使用自己的超时，ctx 结束时提前放弃等待
	done := make(chan error, 1)
	go func() { done <- f.session.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *etcdFactory) Health(ctx context.Context) error {
	if err := f.checkSession(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := f.client.Get(ctx, "xdlock-health-check", clientv3.WithLimit(1)); err != nil {
		return fmt.Errorf("xdlock: etcd health: %w", err)
	}
	return nil
}

type etcdHandle struct {
	factory  *etcdFactory
	mutex    *concurrency.Mutex
	key      string
	released atomic.Bool
}

func (h *etcdHandle) Unlock(ctx context.Context) error {
	if h.released.Load() {
		return ErrNotLocked
	}
	select {
	case <-h.factory.session.Done():
		return ErrSessionExpired
	default:
	}
	if err := h.mutex.Unlock(ctx); err != nil {
		return wrapEtcdError(err)
	}
	h.released.Store(true)
	return nil
}

// Extend etcd 由 Session 心跳续期，这里只确认所有权仍在。
func (h *etcdHandle) Extend(_ context.Context) error {
	if h.released.Load() {
		return ErrNotLocked
	}
	select {
	case <-h.factory.session.Done():
		return ErrSessionExpired
	default:
		return nil
	}
}

func (h *etcdHandle) Key() string {
	return h.key
}

func wrapEtcdError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, concurrency.ErrLocked):
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	case errors.Is(err, concurrency.ErrSessionExpired):
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	case errors.Is(err, concurrency.ErrLockReleased):
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	default:
		return err
	}
}
