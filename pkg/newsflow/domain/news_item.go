package domain

import (
	"database/sql"
	"strings"
)

// NewsItem is a story authored by journalists and moved through the workflow.
type NewsItem struct {
	ContentItem
	Title           string
	Story           string
	TargetWordCount int
	ActualWordCount int
	CheckedOut      sql.NullTime
	CheckedOutBy    sql.NullInt64
	AssignmentID    sql.NullInt64
	OutletID        sql.NullInt64
	EditionID       sql.NullInt64
	// Version is bumped on every write and guards against concurrent
	// overwrites. It is independent of the checkout lock.
	Version int64
}

func (n *NewsItem) IsLocked() bool {
	return n.CheckedOutBy.Valid
}

func (n *NewsItem) IsLockedBy(userID int64) bool {
	return n.CheckedOutBy.Valid && n.CheckedOutBy.Int64 == userID
}

// UpdateWordCount recomputes ActualWordCount from the story text.
func (n *NewsItem) UpdateWordCount() {
	n.ActualWordCount = len(strings.Fields(n.Story))
}

// Clone returns a deep copy so a transition can be prepared without touching
// the caller's item until it has been persisted.
func (n *NewsItem) Clone() *NewsItem {
	c := *n
	c.History = append([]WorkflowStateTransition(nil), n.History...)
	c.Actors = append([]ContentItemActor(nil), n.Actors...)
	return &c
}
