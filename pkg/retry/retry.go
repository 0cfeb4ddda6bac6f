package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	// MaxAttempts of 0 keeps retrying until the context is done.
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Fixed keeps the delay at InitialDelay instead of backing off.
	Fixed   bool
	OnRetry func(attempt uint, err error)
}

// Unrecoverable marks err so that Do stops retrying immediately.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

// Do executes fn until it succeeds, attempts run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	delayType := retry.BackOffDelay
	if cfg.Fixed {
		delayType = retry.FixedDelay
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	}
	if cfg.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(cfg.MaxDelay))
	}
	if cfg.OnRetry != nil {
		opts = append(opts, retry.OnRetry(cfg.OnRetry))
	}

	return retry.Do(fn, opts...)
}
