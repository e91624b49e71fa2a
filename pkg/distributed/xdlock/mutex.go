package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Mutex 把 Factory + key 适配为 TryLock/Unlock/String 形式的锁。
//
// 一个 Mutex 同一时刻最多持有一个 handle；已持有时再次 TryLock 返回 false。
// Unlock 因后端错误失败后 handle 被保留，下一次 TryLock 先重试释放它。
// 并发安全，但通常由单个执行者独占使用。
type Mutex struct {
	factory Factory
	key     string
	fullKey string
	opts    []MutexOption

	mu       sync.Mutex
	handle   LockHandle
	retained bool // handle 释放失败，等待重试
}

// NewMutex 创建 Mutex。opts 在每次 TryLock 时传给 factory。
func NewMutex(factory Factory, key string, opts ...MutexOption) (*Mutex, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return &Mutex{
		factory: factory,
		key:     key,
		fullKey: applyMutexOptions(opts).keyPrefix + key,
		opts:    opts,
	}, nil
}

// TryLock 尝试一次获取。(false, nil) 表示锁被占用。
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		if !m.retained {
			return false, nil
		}
		if err := m.handle.Unlock(ctx); err != nil && !errors.Is(err, ErrNotLocked) {
			return false, fmt.Errorf("xdlock: release retained lock %s: %w", m.fullKey, err)
		}
		m.handle, m.retained = nil, false
	}
	handle, err := m.factory.TryLock(ctx, m.key, m.opts...)
	if err != nil {
		return false, err
	}
	if handle == nil {
		return false, nil
	}
	m.handle = handle
	return true, nil
}

// Unlock 释放当前持有的 handle，未持有时返回 [ErrNotLocked]。
// 后端暂时不可用时保留 handle，调用方可以重试。
func (m *Mutex) Unlock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return ErrNotLocked
	}
	err := m.handle.Unlock(ctx)
	if err == nil || errors.Is(err, ErrNotLocked) {
		m.handle, m.retained = nil, false
		return err
	}
	m.retained = true
	return err
}

// Extend 为当前持有的锁续期，用于执行时间可能超过 Expiry 的任务。
func (m *Mutex) Extend(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return ErrNotLocked
	}
	err := m.handle.Extend(ctx)
	if errors.Is(err, ErrNotLocked) {
		m.handle, m.retained = nil, false
	}
	return err
}

// Held 是否持有 handle（不访问后端，锁可能已在后端过期）
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// String 返回完整 key
func (m *Mutex) String() string {
	return m.fullKey
}
