package xatomic

import "context"

//go:generate mockgen -source=lock.go -destination=mock_lock_test.go -package=xatomic

// Lock 远程互斥锁。
//
// 实现需保证跨进程互斥，Atomic 只调用这三个方法，不管理锁的生命周期。
type Lock interface {
	// TryLock 非阻塞地尝试获取一次。
	// (true, nil) 表示已持有，(false, nil) 表示被他人占用。
	TryLock(ctx context.Context) (bool, error)

	// Unlock 释放锁，无法确认远端已释放时返回错误。
	Unlock(ctx context.Context) error

	// String 返回锁标识，用于日志和错误信息。
	String() string
}

// Work 持锁期间执行的任务。
type Work[T any] func(ctx context.Context) (T, error)
