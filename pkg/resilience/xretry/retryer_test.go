package xretry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetryer_SucceedsAfterFailures(t *testing.T) {
	var retried []int
	r := NewRetryer(
		WithRetryPolicy(NewFixedRetry(3)),
		WithBackoffPolicy(NewNoBackoff()),
		WithOnRetry(func(attempt int, _ error) { retried = append(retried, attempt) }),
	)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryer_ExhaustsAttempts(t *testing.T) {
	r := NewRetryer(
		WithRetryPolicy(NewFixedRetry(2)),
		WithBackoffPolicy(NewNoBackoff()),
	)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
}

func TestRetryer_PermanentErrorStops(t *testing.T) {
	r := NewRetryer(
		WithRetryPolicy(NewFixedRetry(5)),
		WithBackoffPolicy(NewNoBackoff()),
	)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return NewPermanentError(errTransient)
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestRetryer_NeverRetry(t *testing.T) {
	r := NewRetryer(WithRetryPolicy(NewNeverRetry()), WithBackoffPolicy(NewNoBackoff()))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	r := NewRetryer(WithRetryPolicy(NewFixedRetry(3)), WithBackoffPolicy(NewNoBackoff()))

	calls := 0
	v, err := DoWithResult(context.Background(), r, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestRetryer_InvalidArguments(t *testing.T) {
	var nilRetryer *Retryer
	assert.ErrorIs(t, nilRetryer.Do(context.Background(), func(context.Context) error { return nil }), ErrNilRetryer)

	r := NewRetryer()
	//nolint:staticcheck // 验证 nil context 校验
	assert.ErrorIs(t, r.Do(nil, func(context.Context) error { return nil }), ErrNilContext)
	assert.ErrorIs(t, r.Do(context.Background(), nil), ErrNilFunc)

	_, err := DoWithResult[int](context.Background(), nil, func(context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrNilRetryer)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errTransient))
	assert.False(t, IsRetryable(NewPermanentError(errTransient)))
	assert.Equal(t, "permanent error", NewPermanentError(nil).Error())
}
