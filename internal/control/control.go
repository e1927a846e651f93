package control

import (
	"context"
	"fmt"
	"time"

	"github.com/stupiduntilnot/rpchat/internal/logger"
)

// Policy defines retry behavior for provider calls.
type Policy struct {
	MaxRetries  int
	MaxWallTime time.Duration
	// BackoffUnit is the first retry delay; later delays double it.
	BackoffUnit time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		MaxWallTime: 120 * time.Second,
		BackoffUnit: time.Second,
	}
}

// LimitType identifies which limit is reached.
type LimitType string

const LimitWallTime LimitType = "max_wall_time_seconds"

// LimitError indicates a run limit was reached. Err is the last failure,
// if any.
type LimitError struct {
	Type      LimitType
	Value     int64
	Threshold int64
	Err       error
}

func (e *LimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("limit reached type=%s value=%d threshold=%d: %v", e.Type, e.Value, e.Threshold, e.Err)
	}
	return fmt.Sprintf("limit reached type=%s value=%d threshold=%d", e.Type, e.Value, e.Threshold)
}

func (e *LimitError) Unwrap() error {
	return e.Err
}

// CheckWallTime validates elapsed time against policy. A non-positive
// MaxWallTime disables the check.
func CheckWallTime(p Policy, startedAt time.Time, now time.Time) error {
	limit := p.MaxWallTime
	if limit <= 0 {
		return nil
	}
	elapsed := now.Sub(startedAt)
	if elapsed > limit {
		return &LimitError{
			Type:      LimitWallTime,
			Value:     int64(elapsed.Seconds()),
			Threshold: int64(limit.Seconds()),
		}
	}
	return nil
}

// RetryBackoff computes exponential backoff from unit with a cap of 30 units.
func RetryBackoff(unit time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	steps := 1 << (attempt - 1)
	if attempt > 6 || steps > 30 {
		steps = 30
	}
	return time.Duration(steps) * unit
}

// ShouldRetry returns whether a failed attempt should be retried.
func ShouldRetry(p Policy, attempts int) bool {
	return attempts <= p.MaxRetries
}

// Retry calls fn until it succeeds, fails with an error retryable rejects,
// or the policy is exhausted. attempt starts at 1. When retries run out
// the last error is returned unwrapped; a wall-time stop returns a
// *LimitError wrapping it.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) error {
	startedAt := time.Now()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) || !ShouldRetry(p, attempt) {
			return err
		}
		delay := RetryBackoff(p.BackoffUnit, attempt)
		if limitErr := CheckWallTime(p, startedAt, time.Now().Add(delay)); limitErr != nil {
			limitErr.(*LimitError).Err = err
			return limitErr
		}

		logger.Warn("retrying after failure", "attempt", attempt, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
