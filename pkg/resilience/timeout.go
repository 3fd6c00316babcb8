package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by timeout. It returns when fn does or when the
// deadline passes, whichever is first; fn must honor its context since it
// is not waited for after a timeout. A non-positive timeout runs fn
// directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeoutCause(ctx, timeout,
		fmt.Errorf("%s exceeded %v: %w", name, timeout, context.DeadlineExceeded))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()
	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		return context.Cause(bounded)
	}
}
