package models

import "time"

// RetryConfig is the back-off applied to a job after a transient failure.
// The wait grows linearly from RetryIntervalMin on the first retry to
// RetryIntervalMax once RetryScale retries have been spent.
type RetryConfig struct {
	// MaxRetryCount is the retry limit enforced when GiveUp is set.
	MaxRetryCount    int
	RetryIntervalMin time.Duration
	RetryIntervalMax time.Duration
	// RetryScale is the retry count at which the wait reaches
	// RetryIntervalMax. Zero means MaxRetryCount.
	RetryScale int
	// GiveUp makes a job that has used up MaxRetryCount retries fail
	// permanently on its next transient error instead of waiting
	// RetryIntervalMax forever.
	GiveUp bool
}

// Delay is the wait before the next attempt of a job that has already been
// retried attempt times.
func (rc RetryConfig) Delay(attempt int) time.Duration {
	lo, hi := rc.RetryIntervalMin, rc.RetryIntervalMax
	if hi < lo {
		hi = lo
	}
	scale := rc.RetryScale
	if scale <= 0 {
		scale = rc.MaxRetryCount
	}
	switch {
	case attempt <= 0:
		return lo
	case scale <= 0, attempt >= scale:
		return hi
	}
	step := (hi - lo) / time.Duration(scale)
	return lo + step*time.Duration(attempt)
}

// Exhausted reports whether a job already retried attempt times has no
// retries left.
func (rc RetryConfig) Exhausted(attempt int) bool {
	return rc.GiveUp && attempt >= rc.MaxRetryCount
}
