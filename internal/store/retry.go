package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/example/faceflow/internal/logging"
)

// RetryPolicy bounds how transient backend errors are retried.
type RetryPolicy struct {
	Attempts       uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used when a store is built without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaxBackoff, b)
	if p.Attempts > 1 {
		return retry.WithMaxRetries(p.Attempts-1, b)
	}
	return retry.WithMaxRetries(0, b)
}

// withRetry runs fn, retrying errors classified as transient. ErrNotFound and
// every other error are returned at once. Failures come back as OperationError.
func withRetry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, operation string, fn func(ctx context.Context) error) error {
	opLogger := logging.WithOperation(logger, operation, "")
	attempt := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if isTransientError(err) {
			opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt))
	return logging.NewOperationError(operation, "", err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
