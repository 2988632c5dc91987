package triage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// withTimeout runs fn under a deadline. A non-positive timeout leaves ctx untouched.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// retryOnce runs an idempotent read with a per-attempt timeout and at most one retry.
// Writes and the dial action must not go through here.
func retryOnce[T any](ctx context.Context, log *zap.Logger, op string, timeout, backoff time.Duration, fn func(context.Context) (T, error)) (T, error) {
	val, err := withTimeout(ctx, timeout, fn)
	if err == nil {
		return val, nil
	}

	log.Warn("call failed, retrying once", zap.String("op", op), zap.Error(err))
	if backoff > 0 {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		var zero T
		return zero, ctxErr
	}
	return withTimeout(ctx, timeout, fn)
}
