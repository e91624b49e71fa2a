// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xatomic: 在分布式锁保护下执行任务，负责等待、退避、超时和释放
//   - xdlock: 分布式锁，支持 Redis（含 Redlock）、etcd 和进程内后端
//
// 设计原则：
//   - 锁后端只需提供 TryLock/Unlock，执行逻辑与后端无关
//   - 持锁期间任何退出路径都释放锁
//   - 后端异常与锁被占用严格区分
package distributed
