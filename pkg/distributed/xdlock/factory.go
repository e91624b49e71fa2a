package xdlock

import "context"

// LockHandle 一次成功的锁获取。
//
// 每次 TryLock/Lock 成功都返回新的 handle，内部封装唯一的所有者标识，
// 不同获取之间互不干扰。持有 handle 即持有锁。
type LockHandle interface {
	// Unlock 释放本次获取的锁。
	// 返回 [ErrNotLocked] 表示锁已过期或所有权已丢失。
	Unlock(ctx context.Context) error

	// Extend 续期。Redis/Local 按创建时的 Expiry 延长 TTL；
	// etcd 由 Session 自动续期，这里只检查 Session 与本地状态。
	//   - [ErrNotLocked]: 所有权已丢失
	//   - [ErrExtendFailed]: 续期操作失败，可重试
	//   - [ErrSessionExpired]: etcd Session 已过期
	Extend(ctx context.Context) error

	// Key 返回包含前缀的完整 key。
	Key() string
}

// Factory 锁工厂，管理后端连接并创建锁。
type Factory interface {
	// TryLock 非阻塞获取。锁被占用返回 (nil, nil)；err 非 nil 表示锁服务异常。
	TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Lock 阻塞获取，直到成功、重试耗尽（[ErrLockFailed]）或 ctx 结束。
	Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Close 关闭工厂。已获取的 handle 仍可 Unlock。
	Close(ctx context.Context) error

	// Health 检查后端连接。
	Health(ctx context.Context) error
}
