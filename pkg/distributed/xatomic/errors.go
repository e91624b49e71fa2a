package xatomic

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNilWork work 为 nil
	ErrNilWork = errors.New("xatomic: work is nil")

	// ErrNilLock lock 为 nil
	ErrNilLock = errors.New("xatomic: lock is nil")

	// ErrInvalidMaxWait maxWait 不是正数
	ErrInvalidMaxWait = errors.New("xatomic: max wait must be positive")

	// ErrStaleLock 在 maxWait 内未能获取锁。
	// 具体信息见 [StaleLockError]。
	ErrStaleLock = errors.New("xatomic: stale lock")

	// ErrAcquire TryLock 返回了错误（区别于锁被占用）。
	// 具体信息见 [AcquireError]。
	ErrAcquire = errors.New("xatomic: acquire failed")

	// ErrRelease 持锁后释放失败，锁可能仍在后端处于持有状态。
	// 具体信息见 [ReleaseError]。
	ErrRelease = errors.New("xatomic: release failed")

	// ErrLockLost work 执行期间锁已不再受保护（续期失败或被终止钩子释放）。
	// 具体信息见 [LockLostError]。
	ErrLockLost = errors.New("xatomic: lock lost while work was running")

	// ErrInterrupted 持锁期间收到终止信号，作为 work ctx 的取消原因。
	ErrInterrupted = errors.New("xatomic: interrupted by termination signal")

	// ErrKeepAliveUnsupported 配置了 WithKeepAlive 但 lock 未实现 [Extender]
	ErrKeepAliveUnsupported = errors.New("xatomic: lock does not support extend")
)

// StaleLockError 等待超过 maxWait。
type StaleLockError struct {
	Lock     string
	Attempts int // 已安排的重试次数
	Elapsed  time.Duration
}

func (e *StaleLockError) Error() string {
	return fmt.Sprintf("xatomic: lock %s is stale after %d attempts in %s", e.Lock, e.Attempts, e.Elapsed)
}

// Is 使 errors.Is(err, ErrStaleLock) 成立。
func (e *StaleLockError) Is(target error) bool {
	return target == ErrStaleLock
}

// AcquireError TryLock 出错。
type AcquireError struct {
	Lock     string
	Attempts int // 出错前已安排的重试次数
	Err      error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("xatomic: acquire lock %s failed after %d attempts: %v", e.Lock, e.Attempts, e.Err)
}

// Is 使 errors.Is(err, ErrAcquire) 成立。
func (e *AcquireError) Is(target error) bool {
	return target == ErrAcquire
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// ReleaseError 释放失败。
//
// work 同时失败时 Work 保存 work 的错误，
// errors.Is 对释放错误和 work 错误都成立。
type ReleaseError struct {
	Lock string
	Err  error
	Work error
}

func (e *ReleaseError) Error() string {
	if e.Work != nil {
		return fmt.Sprintf("xatomic: release lock %s failed: %v (work: %v)", e.Lock, e.Err, e.Work)
	}
	return fmt.Sprintf("xatomic: release lock %s failed: %v", e.Lock, e.Err)
}

// Is 使 errors.Is(err, ErrRelease) 成立。
func (e *ReleaseError) Is(target error) bool {
	return target == ErrRelease
}

func (e *ReleaseError) Unwrap() []error {
	if e.Work != nil {
		return []error{e.Err, e.Work}
	}
	return []error{e.Err}
}

// LockLostError work 返回前锁已丢失，work 可能在无锁状态下运行过。
//
// Err 是丢失原因：续期错误或 [ErrInterrupted]。Work 保存 work 的错误。
type LockLostError struct {
	Lock string
	Err  error
	Work error
}

func (e *LockLostError) Error() string {
	if e.Work != nil {
		return fmt.Sprintf("xatomic: lock %s lost while work was running: %v (work: %v)", e.Lock, e.Err, e.Work)
	}
	return fmt.Sprintf("xatomic: lock %s lost while work was running: %v", e.Lock, e.Err)
}

// Is 使 errors.Is(err, ErrLockLost) 成立。
func (e *LockLostError) Is(target error) bool {
	return target == ErrLockLost
}

func (e *LockLostError) Unwrap() []error {
	if e.Work != nil {
		return []error{e.Err, e.Work}
	}
	return []error{e.Err}
}
