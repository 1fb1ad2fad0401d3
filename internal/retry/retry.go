// Package retry runs operations against flaky external services with
// bounded exponential backoff. Only errors the domain taxonomy marks
// transient are retried; everything else returns immediately.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/logger"
)

// Config tunes the backoff schedule.
type Config struct {
	// MaxAttempts bounds total tries including the first.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// JitterFraction randomises each delay by ±fraction to avoid
	// thundering herds against a recovering service.
	JitterFraction float64
}

// DefaultConfig returns the standard backoff schedule.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// FromSettings builds a Config from the application retry settings.
func FromSettings(s domain.RetrySettings) Config {
	cfg := DefaultConfig()
	if s.MaxAttempts > 0 {
		cfg.MaxAttempts = s.MaxAttempts
	}
	if s.InitialDelay > 0 {
		cfg.InitialDelay = s.InitialDelay
	}
	if s.MaxDelay > 0 {
		cfg.MaxDelay = s.MaxDelay
	}
	if s.Multiplier > 0 {
		cfg.Multiplier = s.Multiplier
	}
	if s.JitterFraction > 0 {
		cfg.JitterFraction = s.JitterFraction
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Do runs operation until it succeeds, fails permanently, exhausts
// MaxAttempts, or ctx is cancelled. The op string names the operation
// in logs.
func Do(ctx context.Context, cfg Config, op string, operation func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					zap.String("op", op),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			logger.Debug("error not retryable",
				zap.String("op", op),
				zap.Error(err),
			)
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay, cfg.JitterFraction)):
		}

		delay = time.Duration(math.Min(float64(cfg.MaxDelay), float64(delay)*cfg.Multiplier))
	}

	return lastErr
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op string, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, op, func() error {
		var opErr error
		result, opErr = operation()
		return opErr
	})
	return result, err
}

func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}

	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	if rand.Intn(2) == 0 {
		return duration - jitter
	}
	return duration + jitter
}
