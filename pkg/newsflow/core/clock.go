// Package core holds the abstractions every newsflow layer shares.
package core

import "time"

// Clock supplies the time used for scheduling, lock stamps and transition
// history. Tests swap it for a fake one they can move by hand.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// NewRealClock returns a Clock backed by the wall clock. All times are UTC.
func NewRealClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// OrReal returns c, or the wall clock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return systemClock{}
	}
	return c
}
