package stage

import (
	"context"
	"log/slog"
	"time"

	"subgen/internal/logging"
	"subgen/internal/services"
)

// RetryPolicy controls how provider calls are retried. Transient failures are
// retried up to MaxRetries times with exponential backoff; timeouts get a
// single retry; everything else returns immediately.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	// Sleep is injectable for tests. Nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the provider clients' expectations.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Second,
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetry runs fn under the retry policy.
func WithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, operation string, fn func(ctx context.Context) error) error {
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	transientLeft := policy.MaxRetries
	timeoutLeft := 1

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case services.IsTimeout(err) && timeoutLeft > 0:
			timeoutLeft--
		case services.IsTimeout(err):
			return services.Wrap(services.ErrFatal, "", operation, "timed out after retry", err)
		case services.IsTransient(err) && transientLeft > 0:
			transientLeft--
		default:
			return err
		}

		if logger != nil {
			logger.Warn("retrying after failure",
				logging.String("operation", operation),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Error(err))
		}
		if sleepErr := policy.sleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
		backoff *= 2
	}
}
