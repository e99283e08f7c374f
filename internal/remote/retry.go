package remote

import (
	"context"
	"fmt"
)

// Refresher replaces the current session with a freshly acquired one
type Refresher interface {
	Invalidate(ctx context.Context) error
}

// WithAuthRetry runs op and, if it fails with KindUnauthorized, refreshes the
// session and runs op exactly once more. The second error is returned as is.
func WithAuthRetry[T any](ctx context.Context, refresher Refresher, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := op(ctx)
	if err == nil || !IsUnauthorized(err) || refresher == nil {
		return result, err
	}

	if rerr := refresher.Invalidate(ctx); rerr != nil {
		var zero T
		return zero, fmt.Errorf("failed to refresh session after %v: %w", err, rerr)
	}

	return op(ctx)
}

// Do is WithAuthRetry for operations without a result
func Do(ctx context.Context, refresher Refresher, op func(ctx context.Context) error) error {
	_, err := WithAuthRetry(ctx, refresher, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
