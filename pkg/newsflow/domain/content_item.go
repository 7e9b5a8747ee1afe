package domain

import (
	"sort"
	"time"
)

// ContentItem is the workflow-governed part shared by every kind of content.
// It owns its history and actors; both are deleted with it.
type ContentItem struct {
	ID                        int64
	CurrentState              WorkflowState
	History                   []WorkflowStateTransition
	Actors                    []ContentItemActor
	Created                   time.Time
	Updated                   time.Time
	PrecalculatedCurrentActor string
}

// ContentItemActor binds a user to a content item for a role.
type ContentItemActor struct {
	ID            int64
	ContentItemID int64
	UserID        int64
	Username      string
	Role          string
}

func (c *ContentItem) IsStartState(w *Workflow) bool { return w.IsStartState(c.CurrentState.ID) }
func (c *ContentItem) IsEndState(w *Workflow) bool   { return w.IsEndState(c.CurrentState.ID) }
func (c *ContentItem) IsTrashState(w *Workflow) bool { return w.IsTrashState(c.CurrentState.ID) }

func (c *ContentItem) IsIntermediateState(w *Workflow) bool {
	return !c.IsEndState(w) && !c.IsTrashState(w)
}

// IsSubmitted reports whether any transition in the history was a submission.
func (c *ContentItem) IsSubmitted() bool {
	_, ok := c.SubmittedDate()
	return ok
}

// SubmittedDate returns the timestamp of the first submitted transition.
// History is kept in creation order, so ties resolve to the earlier record.
func (c *ContentItem) SubmittedDate() (time.Time, bool) {
	var first *WorkflowStateTransition
	for i := range c.History {
		t := &c.History[i]
		if !t.Submitted {
			continue
		}
		if first == nil || t.Timestamp.Before(first.Timestamp) {
			first = t
		}
	}
	if first == nil {
		return time.Time{}, false
	}
	return first.Timestamp, true
}

// LatestTransition returns the transition with the greatest timestamp. On equal
// timestamps the higher id wins, and on equal ids the later record wins.
func (c *ContentItem) LatestTransition() (*WorkflowStateTransition, bool) {
	var latest *WorkflowStateTransition
	for i := range c.History {
		t := &c.History[i]
		if latest == nil ||
			t.Timestamp.After(latest.Timestamp) ||
			(t.Timestamp.Equal(latest.Timestamp) && t.ID >= latest.ID) {
			latest = t
		}
	}
	return latest, latest != nil
}

// HistoryForDisplay returns the history newest first without touching the
// stored order.
func (c *ContentItem) HistoryForDisplay() []WorkflowStateTransition {
	out := make([]WorkflowStateTransition, len(c.History))
	copy(out, c.History)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// ActorsForRole returns the actors bound to role, in the order they were added.
func (c *ContentItem) ActorsForRole(role string) []ContentItemActor {
	var out []ContentItemActor
	for _, a := range c.Actors {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

func (c *ContentItem) HasActor(userID int64, role string) bool {
	for _, a := range c.Actors {
		if a.UserID == userID && a.Role == role {
			return true
		}
	}
	return false
}
