package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultRetryPolicy matches the defaults applied by the config loader
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// PolicyFromConfig converts the YAML retry section
func PolicyFromConfig(cfg config.RetryConfig) *RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelayMS > 0 {
		p.InitialDelay = time.Duration(cfg.InitialDelayMS) * time.Millisecond
	}
	if cfg.MaxDelaySeconds > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelaySeconds) * time.Second
	}
	if cfg.BackoffFactor > 0 {
		p.BackoffFactor = cfg.BackoffFactor
	}
	if cfg.JitterFactor > 0 {
		p.JitterFactor = cfg.JitterFactor
	}
	return p
}

// RetryableError marks an error as transient
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the retry manager attempts the operation again
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is transient: explicitly marked, or a
// network error other than a cancelled context.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// RetryManager handles retry logic with backoff
type RetryManager struct {
	policy  *RetryPolicy
	logger  *logging.ComponentLogger
	metrics *RetryMetrics
	mu      sync.RWMutex

	// OnRetry is called before every backoff wait
	OnRetry func(operation string, attempt int, err error)
	sleep   func(ctx context.Context, d time.Duration) error
}

// RetryMetrics tracks retry statistics
type RetryMetrics struct {
	TotalAttempts     int64
	SuccessfulRetries int64
	FailedRetries     int64
	TotalRetryTime    time.Duration
}

func NewRetryManager(policy *RetryPolicy, logger *logging.ComponentLogger) *RetryManager {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryManager{
		policy:  policy,
		logger:  logger,
		metrics: &RetryMetrics{},
		sleep:   sleepContext,
	}
}

// Execute runs fn until it succeeds, fails with a permanent error, or the
// attempts are exhausted.
func (rm *RetryManager) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	startTime := time.Now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				rm.recordSuccess(time.Since(startTime))
				rm.logger.Info().
					Str("operation", operation).
					Int("attempts", attempt).
					Dur("total_time", time.Since(startTime)).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		rm.recordAttempt()

		if !IsRetryable(err) {
			rm.logger.Debug().
				Str("operation", operation).
				Err(err).
				Msg("Error is not retryable")
			return err
		}

		if attempt >= rm.policy.MaxAttempts {
			rm.recordFailure(time.Since(startTime))
			rm.logger.Error().
				Str("operation", operation).
				Int("attempts", attempt).
				Err(err).
				Msg("Operation failed after max attempts")
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		delay := rm.calculateDelay(attempt)
		rm.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("Operation failed, retrying")
		if rm.OnRetry != nil {
			rm.OnRetry(operation, attempt, err)
		}

		if err := rm.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// ExecuteWithResult is Execute for operations that return a value
func ExecuteWithResult[T any](ctx context.Context, rm *RetryManager, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := rm.Execute(ctx, operation, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// calculateDelay grows exponentially from InitialDelay, applies symmetric
// jitter and caps at MaxDelay.
func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	delay := float64(rm.policy.InitialDelay) * math.Pow(rm.policy.BackoffFactor, float64(attempt-1))

	if rm.policy.JitterFactor > 0 {
		delay += delay * rm.policy.JitterFactor * (2*rand.Float64() - 1)
	}
	if delay > float64(rm.policy.MaxDelay) {
		delay = float64(rm.policy.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rm *RetryManager) recordAttempt() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.metrics.TotalAttempts++
}

func (rm *RetryManager) recordSuccess(duration time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.metrics.SuccessfulRetries++
	rm.metrics.TotalRetryTime += duration
}

func (rm *RetryManager) recordFailure(duration time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.metrics.FailedRetries++
	rm.metrics.TotalRetryTime += duration
}

// GetMetrics returns retry metrics
func (rm *RetryManager) GetMetrics() RetryMetrics {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return *rm.metrics
}
