package xdlock

import "errors"

// 使用 errors.Is 匹配。
var (
	// ErrLockHeld 锁被其他持有者占用。TryLock 会将其转为 (nil, nil)。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")
	// ErrLockFailed 重试耗尽仍未获取到锁
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")
	// ErrLockExpired 锁已过期或被其他持有者抢走
	ErrLockExpired = errors.New("xdlock: lock expired or stolen")
	// ErrExtendFailed 续期失败，锁可能仍在
	ErrExtendFailed = errors.New("xdlock: failed to extend lock")
	// ErrNilClient 客户端为空
	ErrNilClient = errors.New("xdlock: client is nil")
	// ErrNilFactory 工厂为空
	ErrNilFactory = errors.New("xdlock: factory is nil")
	// ErrSessionExpired etcd Session 已过期，需要重建工厂
	ErrSessionExpired = errors.New("xdlock: session expired")
	// ErrFactoryClosed 工厂已关闭
	ErrFactoryClosed = errors.New("xdlock: factory is closed")
	// ErrNotLocked 锁未被持有（已释放、已过期或所有权丢失）
	ErrNotLocked = errors.New("xdlock: not locked")
	// ErrEmptyKey key 为空或仅含空白
	ErrEmptyKey = errors.New("xdlock: key must not be empty")
	// ErrKeyTooLong key 超过 512 字节
	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("xdlock: config is nil")
	// ErrNoEndpoints 未配置 endpoints
	ErrNoEndpoints = errors.New("xdlock: no endpoints configured")
	// ErrInvalidEndpoint endpoint 格式非法
	ErrInvalidEndpoint = errors.New("xdlock: invalid endpoint")
	// ErrCircuitOpen 熔断器打开，请求被拒绝
	ErrCircuitOpen = errors.New("xdlock: circuit breaker is open")
)
