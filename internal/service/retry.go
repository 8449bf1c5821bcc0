// internal/service/retry.go
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/utils"
)

// retryPolicy bounds how often a wheel command is attempted
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// executeWithRetry runs fn with a per-attempt deadline. Each failed attempt is
// logged at warn level and the final failure at error level. Lost or missing
// connections, refusals and caller cancellation end the loop immediately.
func executeWithRetry(ctx context.Context, logger *utils.DeviceLogger, policy retryPolicy, label string, timeout time.Duration, fn func(ctx context.Context) error) error {
	attempts := policy.attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			logger.LogCommand(label, time.Since(start), attempt, nil)
			return nil
		}

		err = asTimeout(ctx, label, err)
		logger.LogCommand(label, time.Since(start), attempt, err)
		last = err

		if !retryable(ctx, err) {
			break
		}
		if attempt < attempts {
			if perr := pause(ctx, policy.delay); perr != nil {
				return perr
			}
		}
	}

	logger.Error(label+" failed", zap.Error(last))
	return last
}

// executeWithRetryValue is executeWithRetry for commands that return a value
func executeWithRetryValue[T any](ctx context.Context, logger *utils.DeviceLogger, policy retryPolicy, label string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := executeWithRetry(ctx, logger, policy, label, timeout, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// asTimeout turns an expired attempt deadline into a labelled timeout error
func asTimeout(ctx context.Context, label string, err error) error {
	expired := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	if !expired && !apperrors.Is(err, apperrors.KindTimeout) {
		return err
	}

	timeout := apperrors.Timeout(label)
	timeout.Details = err.Error()
	timeout.Cause = err
	return timeout
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindConnectionLost, apperrors.KindNotConnected, apperrors.KindNotSupported, apperrors.KindRejected:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
