// Package xretry 提供重试策略与退避策略。
//
// # 设计理念
//
// xretry 采用接口驱动设计：
//   - RetryPolicy：决定失败后是否继续重试
//   - BackoffPolicy：决定两次尝试之间的等待时间
//
// 重试循环由 [avast/retry-go/v5] 驱动，xretry 只负责把策略翻译为 retry-go 选项。
//
// # 退避策略
//
//   - FixedBackoff：固定延迟
//   - ExponentialBackoff：指数退避，可选抖动，随机源可注入
//   - NoBackoff：无延迟
//
// xatomic 的获取循环直接复用 ExponentialBackoff 计算 5^n 指数项，
// 其余两种主要用于 Retryer。
//
// # 使用方式
//
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewFixedBackoff(50*time.Millisecond)),
//	)
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return ping(ctx)
//	})
//
// # 错误分类
//
// 被 [NewPermanentError] 包装的错误不会被重试；其余错误默认可重试。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
