package sim

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// retry runs a storage step until it succeeds or RunConfig.MaxRetries extra
// attempts are spent. The backoff doubles per attempt up to maxRetryBackoff.
// Every failed attempt is logged with the step name.
func (r *Runner) retry(ctx context.Context, step string, fn func(context.Context) error) error {
	retries := r.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := r.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("storage step recovered", zap.String("step", step), zap.Int("attempt", attempt))
			}
			return nil
		}
		if attempt > retries {
			r.logger.Error("storage step failed", zap.String("step", step), zap.Int("attempts", attempt), zap.Error(err))
			return err
		}
		r.logger.Warn("storage step failed, retrying",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}
