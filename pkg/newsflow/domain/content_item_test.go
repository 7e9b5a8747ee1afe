package domain

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestContentItem_SubmittedDateIsFirstSubmission(t *testing.T) {
	item := ContentItem{History: []WorkflowStateTransition{
		{ID: 1, Timestamp: base, Submitted: false},
		{ID: 2, Timestamp: base.Add(time.Hour), Submitted: true},
		{ID: 3, Timestamp: base.Add(2 * time.Hour), Submitted: true},
	}}

	if !item.IsSubmitted() {
		t.Fatal("expected item to be submitted")
	}
	got, _ := item.SubmittedDate()
	if !got.Equal(base.Add(time.Hour)) {
		t.Fatalf("SubmittedDate = %s, want first submission", got)
	}
}

func TestContentItem_NotSubmitted(t *testing.T) {
	item := ContentItem{History: []WorkflowStateTransition{{ID: 1, Timestamp: base}}}
	if item.IsSubmitted() {
		t.Fatal("no submitted transition in history")
	}
	if _, ok := item.SubmittedDate(); ok {
		t.Fatal("SubmittedDate should be absent")
	}
}

func TestContentItem_LatestTransitionTieBreaksOnID(t *testing.T) {
	item := ContentItem{History: []WorkflowStateTransition{
		{ID: 7, StateName: "a", Timestamp: base},
		{ID: 9, StateName: "b", Timestamp: base.Add(time.Minute)},
		{ID: 8, StateName: "c", Timestamp: base.Add(time.Minute)},
	}}
	latest, ok := item.LatestTransition()
	if !ok || latest.StateName != "b" {
		t.Fatalf("expected highest id to win the tie, got %+v", latest)
	}

	unsaved := ContentItem{History: []WorkflowStateTransition{
		{StateName: "first", Timestamp: base},
		{StateName: "second", Timestamp: base},
	}}
	latest, _ = unsaved.LatestTransition()
	if latest.StateName != "second" {
		t.Fatalf("equal ids should resolve to the later record, got %q", latest.StateName)
	}
}

func TestContentItem_HistoryForDisplayNewestFirst(t *testing.T) {
	item := ContentItem{History: []WorkflowStateTransition{
		{ID: 1, Timestamp: base},
		{ID: 2, Timestamp: base.Add(time.Hour)},
	}}
	display := item.HistoryForDisplay()
	if display[0].ID != 2 || item.History[0].ID != 1 {
		t.Fatalf("display order wrong or stored history mutated: %+v", display)
	}
}

func TestContentItem_StatePredicates(t *testing.T) {
	wf := &Workflow{StartStateID: 1, EndStateID: 3, TrashStateID: 4}
	cases := []struct {
		state                    int64
		start, end, trash, inter bool
	}{
		{1, true, false, false, true},
		{2, false, false, false, true},
		{3, false, true, false, false},
		{4, false, false, true, false},
	}
	for _, c := range cases {
		item := ContentItem{CurrentState: WorkflowState{ID: c.state}}
		if item.IsStartState(wf) != c.start || item.IsEndState(wf) != c.end ||
			item.IsTrashState(wf) != c.trash || item.IsIntermediateState(wf) != c.inter {
			t.Errorf("predicates wrong for state %d", c.state)
		}
	}
}

func TestNewsItem_LockAndWordCount(t *testing.T) {
	n := &NewsItem{Story: "  Council approves\nnew budget  "}
	n.UpdateWordCount()
	if n.ActualWordCount != 4 {
		t.Fatalf("ActualWordCount = %d", n.ActualWordCount)
	}
	if n.IsLocked() {
		t.Fatal("fresh item should be unlocked")
	}
	n.CheckedOutBy.Int64, n.CheckedOutBy.Valid = 5, true
	if !n.IsLockedBy(5) || n.IsLockedBy(6) {
		t.Fatal("lock holder mismatch")
	}

	clone := n.Clone()
	clone.History = append(clone.History, WorkflowStateTransition{ID: 1})
	if len(n.History) != 0 {
		t.Fatal("clone must not share history with the original")
	}
}
