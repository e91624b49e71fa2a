package xatomic

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/omeyang/xatomic/pkg/resilience/xretry"
)

const (
	// DefaultMaxWait 默认最长等待时间
	DefaultMaxWait = time.Hour

	// DefaultMaxExponent 指数项上限，避免 attempt 很大时溢出
	DefaultMaxExponent = time.Hour

	// DefaultReleaseTimeout 默认释放超时
	DefaultReleaseTimeout = 5 * time.Second

	baseDelay   = 100 * time.Millisecond
	jitterRange = 100 * time.Millisecond
	expInitial  = 5 * time.Millisecond
	expFactor   = 5
)

// Random 抖动随机源，Int64N 返回 [0, n) 内的值。
// *math/rand/v2.Rand 满足此接口。
type Random interface {
	Int64N(n int64) int64
}

// Backoff 带抖动的指数退避。
//
//	delay(n) = 100ms + U[0, 100ms) + 5^n ms
//
// 固定项和抖动让多个竞争者错开，指数项在几次之后占主导。
type Backoff struct {
	random Random
	exp    *xretry.ExponentialBackoff
}

// NewBackoff 创建退避策略，random 为 nil 时使用 crypto/rand。
func NewBackoff(random Random) *Backoff {
	if random == nil {
		random = cryptoRandom{}
	}
	return &Backoff{
		random: random,
		exp: xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(expInitial),
			xretry.WithMultiplier(expFactor),
			xretry.WithJitter(0),
			xretry.WithMaxDelay(DefaultMaxExponent),
		),
	}
}

// NextDelay 返回第 attempt 次重试前的等待时间，attempt < 1 按 1 处理。
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	jitter := b.random.Int64N(int64(jitterRange))
	// 随机源实现不当时截断，保证结果落在 [100ms, 200ms) + 指数项
	jitter = min(max(jitter, 0), int64(jitterRange)-1)
	return baseDelay + time.Duration(jitter) + b.exp.NextDelay(attempt)
}

var _ xretry.BackoffPolicy = (*Backoff)(nil)

// cryptoRandom 基于 crypto/rand；读取失败时返回 0（无抖动）。
type cryptoRandom struct{}

func (cryptoRandom) Int64N(n int64) int64 {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}
