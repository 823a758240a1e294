package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig configures WithRetry.
type RetryConfig struct {
	Attempts uint          // default 3
	Delay    time.Duration // base backoff delay, default 1s
	Limiter  *RateLimiter  // optional
	Logger   *slog.Logger
}

type retryCorrector struct {
	next   Corrector
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry wraps c so retryable failures are repeated with exponential
// backoff. A 429 with Retry-After also holds the limiter for that long.
func WithRetry(c Corrector, cfg RetryConfig) Corrector {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &retryCorrector{next: c, cfg: cfg, logger: logger.With("provider", c.Name())}
}

func (r *retryCorrector) Name() string { return r.next.Name() }

func (r *retryCorrector) Correct(ctx context.Context, text, instructions string) (string, error) {
	return retry.DoWithData(
		func() (string, error) {
			if r.cfg.Limiter != nil {
				if err := r.cfg.Limiter.Wait(ctx); err != nil {
					return "", retry.Unrecoverable(err)
				}
			}
			out, err := r.next.Correct(ctx, text, instructions)
			if rle, ok := IsRateLimitError(err); ok && r.cfg.Limiter != nil {
				r.cfg.Limiter.Backoff(rle.RetryAfter)
			}
			return out, err
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.Attempts),
		retry.Delay(r.cfg.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("correction failed, retrying", "attempt", n+1, "error", err)
		}),
	)
}
