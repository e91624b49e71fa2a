// Package xatomic 在分布式锁保护下执行任务。
//
// 核心类型 [Atomic] 把一个可能被争用的 TryLock/Unlock 锁包装成
// "同一锁标识下同时最多一个执行" 的保证：
//
//	a, err := xatomic.New(work, mutex, xatomic.WithMaxWait(10*time.Minute))
//	if err != nil {
//	    return err
//	}
//	result, err := a.Run(ctx)
//
// # 获取循环
//
// Run 反复调用 [Lock.TryLock]，锁被占用时按 [Backoff] 等待：
//
//	delay(n) = 100ms + U[0, 100ms) + 5^n ms  (n 从 1 开始)
//
// 自首次尝试起累计等待超过 maxWait（默认 1 小时）后返回 [ErrStaleLock]。
// TryLock 本身返回错误时不视为占用，直接返回 [ErrAcquire]；
// 需要容忍瞬时网络错误时用 [WithAcquireRetryer] 配置重试。
//
// # 释放保证
//
// 获取成功后 work 恰好执行一次，无论正常返回、返回错误还是 panic，
// 锁都会在结果返回前释放。释放使用脱离调用方取消的 context，
// 超时由 [WithReleaseTimeout] 控制。释放失败返回 [ErrRelease]，
// 与 work 自身的错误可区分。
//
// # 续期
//
// 锁有过期时间而 work 可能更久时，用 [WithKeepAlive] 按固定间隔续期，
// lock 需实现 [Extender]。续期失败时 work 的 ctx 被取消，
// Run 返回 [ErrLockLost]，调用方据此得知 work 可能在无锁状态下运行过。
//
// # 终止信号
//
// 持锁期间进程收到 SIGHUP/SIGINT/SIGTERM/SIGQUIT 时，[SignalHooks] 先取消
// work 的 ctx（原因为 [ErrInterrupted]），等待正常路径释放锁；钩子超时后
// 才直接释放，此时 Run 返回 [ErrLockLost]。之后信号交还给进程。
// 进程已忽略的信号不监听；应用自己处理信号时可用 WithRedelivery(false)。
//
// # 锁实现
//
// [Lock] 只要求 TryLock/Unlock/String，pkg/distributed/xdlock 的
// Mutex 提供 Redis、etcd 和进程内三种实现。
package xatomic
