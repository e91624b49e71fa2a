package xretry

import "errors"

var (
	// ErrNilRetryer Retryer 为 nil。
	ErrNilRetryer = errors.New("xretry: retryer is nil")

	// ErrNilContext context 为 nil。
	ErrNilContext = errors.New("xretry: context is nil")

	// ErrNilFunc 待执行函数为 nil。
	ErrNilFunc = errors.New("xretry: function is nil")
)

// RetryableError 可声明自身是否可重试的错误。
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误，不会被重试。
type PermanentError struct {
	Err error
}

// NewPermanentError 将 err 标记为永久性错误。
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Retryable 永久错误不可重试。
func (e *PermanentError) Retryable() bool {
	return false
}

// IsRetryable 判断错误是否可重试。
//   - nil：不需要重试
//   - 实现 RetryableError：以 Retryable() 为准
//   - 其他错误：可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
