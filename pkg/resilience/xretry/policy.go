package xretry

import (
	"context"
	"time"
)

// RetryPolicy 定义重试策略接口。
type RetryPolicy interface {
	// MaxAttempts 返回最大尝试次数（包含首次尝试），0 表示不限次数。
	MaxAttempts() int

	// ShouldRetry 判断第 attempt 次（从 1 开始）失败后是否继续重试。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 定义退避策略接口。
type BackoffPolicy interface {
	// NextDelay 返回第 attempt 次（从 1 开始）重试前的等待时间。
	NextDelay(attempt int) time.Duration
}

// FixedRetryPolicy 固定次数重试策略
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry 创建固定次数重试策略。
// maxAttempts 包含首次尝试，最小为 1。
func NewFixedRetry(maxAttempts int) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts}
}

// MaxAttempts 最大尝试次数（含首次）
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry ctx 未取消且未达上限时，按错误是否可重试决定。
func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return IsRetryable(err)
}

// NeverRetryPolicy 永不重试策略
type NeverRetryPolicy struct{}

// NewNeverRetry 创建永不重试策略
func NewNeverRetry() *NeverRetryPolicy {
	return &NeverRetryPolicy{}
}

// MaxAttempts 固定为 1
func (p *NeverRetryPolicy) MaxAttempts() int {
	return 1
}

// ShouldRetry 始终返回 false。
func (p *NeverRetryPolicy) ShouldRetry(context.Context, int, error) bool {
	return false
}

var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*NeverRetryPolicy)(nil)
)
