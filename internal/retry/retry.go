// Package retry runs an operation a bounded number of times with a fixed delay
// between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Policy is a fixed-backoff retry policy. MaxAttempts below 1 is treated as 1.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// Do calls op until it succeeds, the attempts run out, or ctx is done. On
// exhaustion the error combines every attempt's failure.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, op func(ctx context.Context, attempt int) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var errs error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, fmt.Errorf("attempt %d/%d: %w", attempt, attempts, err))
		logger.Warn("Attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", attempts), zap.Error(err))

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return multierr.Append(errs, ctx.Err())
		case <-timer.C:
		}
	}
	return errs
}
