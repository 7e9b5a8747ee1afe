package domain

import "time"

// WorkflowStateTransition is an append-only history record of a content item
// entering a state.
type WorkflowStateTransition struct {
	ID            int64
	ContentItemID int64
	StateID       int64
	StateName     string
	UserID        int64
	Username      string
	Timestamp     time.Time
	Comment       string
	Submitted     bool
}
