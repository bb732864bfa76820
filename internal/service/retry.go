package service

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxJitter:  time.Second,
	}
}

// Retry runs fn with bounded exponential backoff. Retryable failures
// (429, 5xx, network, timeout) get up to MaxRetries further attempts;
// fatal classifications short-circuit. After exhaustion the last error
// is returned verbatim so the operator sees the true upstream cause.
func Retry[T any](ctx context.Context, logger *zap.Logger, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := Classify(err)
		if !Retryable(kind) {
			logger.Warn("Operation failed with non-retryable error",
				zap.String("operation", op),
				zap.String("kind", kind.String()),
				zap.Error(err))
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay * (1 << attempt)
		if cfg.MaxJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(cfg.MaxJitter)))
		}

		logger.Warn("Operation failed, retrying",
			zap.String("operation", op),
			zap.String("kind", kind.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	logger.Error("Operation failed after all retries",
		zap.String("operation", op),
		zap.Int("attempts", cfg.MaxRetries+1),
		zap.Error(lastErr))
	return zero, lastErr
}
