package domain

import "time"

// Executor is one registered scheduler process. Jobs it claims carry its id,
// and the repair sweep treats claims by executors whose LastActive has gone
// stale as abandoned.
type Executor struct {
	ID         int64
	Name       string
	Started    time.Time
	LastActive time.Time
}

// Idle is how long the executor has gone without a heartbeat.
func (e Executor) Idle(now time.Time) time.Duration {
	if now.Before(e.LastActive) {
		return 0
	}
	return now.Sub(e.LastActive)
}

// Stale reports whether the last heartbeat is older than after.
func (e Executor) Stale(now time.Time, after time.Duration) bool {
	return e.Idle(now) > after
}
