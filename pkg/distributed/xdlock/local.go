package xdlock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	owner    string
	deadline time.Time
	released chan struct{}
}

type localFactory struct {
	mu     sync.Mutex
	locks  map[string]*localEntry
	now    func() time.Time
	closed atomic.Bool
}

// NewLocalFactory 创建进程内锁工厂。
//
// 语义与 Redis 后端一致：按 Expiry 过期，所有者由 uuid 标识，
// 过期后被他人获取时原 handle 的 Unlock 返回 [ErrNotLocked]。
// 不跨进程，适合单机部署和测试。
func NewLocalFactory() Factory {
	return &localFactory{
		locks: make(map[string]*localEntry),
		now:   time.Now,
	}
}

func (f *localFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, fullKey, err := f.prepare(key, opts)
	if err != nil {
		return nil, err
	}
	owner, _ := f.acquire(fullKey, o.expiry)
	if owner == "" {
		return nil, nil
	}
	return &localHandle{factory: f, key: fullKey, owner: owner, expiry: o.expiry}, nil
}

// Lock 在锁释放时被唤醒，过期锁按 retryDelay 轮询发现。
func (f *localFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	o, fullKey, err := f.prepare(key, opts)
	if err != nil {
		return nil, err
	}
	for try := 1; try <= o.tries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		owner, released := f.acquire(fullKey, o.expiry)
		if owner != "" {
			return &localHandle{factory: f, key: fullKey, owner: owner, expiry: o.expiry}, nil
		}
		if try == o.tries {
			break
		}
		timer := time.NewTimer(o.delayFor(try))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
	}
	return nil, ErrLockFailed
}

func (f *localFactory) prepare(key string, opts []MutexOption) (*mutexOptions, string, error) {
	if f.closed.Load() {
		return nil, "", ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	o := applyMutexOptions(opts)
	return o, o.keyPrefix + key, nil
}

// acquire 成功时返回新的所有者标识；失败时返回当前持有者的释放通知。
func (f *localFactory) acquire(key string, expiry time.Duration) (string, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if e, ok := f.locks[key]; ok {
		if now.Before(e.deadline) {
			return "", e.released
		}
		close(e.released)
	}
	owner := uuid.NewString()
	f.locks[key] = &localEntry{
		owner:    owner,
		deadline: now.Add(expiry),
		released: make(chan struct{}),
	}
	return owner, nil
}

func (f *localFactory) release(key, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.locks[key]
	if !ok || e.owner != owner || !f.now().Before(e.deadline) {
		return ErrNotLocked
	}
	delete(f.locks, key)
	close(e.released)
	return nil
}

func (f *localFactory) extend(key, owner string, expiry time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.locks[key]
	now := f.now()
	if !ok || e.owner != owner || !now.Before(e.deadline) {
		return ErrNotLocked
	}
	e.deadline = now.Add(expiry)
	return nil
}

func (f *localFactory) Close(_ context.Context) error {
	f.closed.Store(true)
	return nil
}

func (f *localFactory) Health(_ context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	return nil
}

type localHandle struct {
	factory *localFactory
	key     string
	owner   string
	expiry  time.Duration
}

func (h *localHandle) Unlock(_ context.Context) error {
	return h.factory.release(h.key, h.owner)
}

func (h *localHandle) Extend(_ context.Context) error {
	return h.factory.extend(h.key, h.owner, h.expiry)
}

func (h *localHandle) Key() string {
	return h.key
}
