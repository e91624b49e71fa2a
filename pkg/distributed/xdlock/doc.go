// Package xdlock 分布式锁后端适配。
//
// # 后端
//
//   - Redis：基于 redsync，单节点为标准锁，多节点使用 Redlock（过半成功）
//   - etcd：基于 concurrency.Mutex，Session 租约自动续期
//   - Local：进程内实现，适合单机部署和测试
//
// 所有后端实现统一的 [Factory] 接口，每次成功获取返回独立的 [LockHandle]。
// TryLock 返回 (nil, nil) 表示锁被其他持有者占用，这是正常情况而非错误。
//
//	handle, err := factory.TryLock(ctx, "jobs", xdlock.WithExpiry(time.Minute))
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if handle == nil {
//	    return nil // 被占用
//	}
//	defer handle.Unlock(ctx)
//
// # 适配 xatomic
//
// [Mutex] 把 Factory + key 适配为 xatomic 的 Lock 能力（TryLock/Unlock/String），
// 它在内部持有最近一次成功获取的 handle。
//
//	m, _ := xdlock.NewMutex(factory, "jobs")
//	result, err := xatomic.Do(ctx, m, work)
//
// # 熔断
//
// [WithBreaker] 为任意 Factory 增加 gobreaker 熔断：锁被占用视为成功，
// 后端错误计入失败；熔断打开时直接返回 [ErrCircuitOpen]。
package xdlock
