package newsroom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/internal/testsupport"
	"github.com/RealZimboGuy/newsflow/internal/workflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

var deskTime = time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

type scheduleFunc func(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error)

func (f scheduleFunc) Schedule(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error) {
	return f(ctx, req)
}

type desk struct {
	svc       *Service
	items     *repository.NewsItemRepository
	users     *repository.UserAccountRepository
	wf        *domain.Workflow
	anna, ben *domain.UserAccount
	cara      *domain.UserAccount
	requests  []models.ScheduleJobRequest
	failNext  error
}

func newDesk(t *testing.T) *desk {
	t.Helper()
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	clock := testsupport.NewFakeClock(deskTime)
	d := &desk{
		items: repository.NewNewsItemRepository(db, repository.SQLite, clock),
		users: repository.NewUserAccountRepository(db, repository.SQLite, clock),
	}
	flows := repository.NewWorkflowRepository(db, repository.SQLite, clock)

	d.wf = &domain.Workflow{
		Name: "story", StartStateID: 1, EndStateID: 3, TrashStateID: 4,
		States: []domain.WorkflowState{
			{ID: 1, Name: "Draft", ActorRole: "Journalist", Permission: models.PermissionUser, TreatAsSubmitted: true},
			{ID: 2, Name: "In Review", ActorRole: "Editor", Permission: models.PermissionGroup},
			{ID: 3, Name: "Published", ActorRole: "Editor", Permission: models.PermissionGroup},
			{ID: 4, Name: "Trash", ActorRole: "Editor", Permission: models.PermissionGroup},
		},
		Steps: []domain.WorkflowStep{
			{Name: "Submit", FromStateID: 1, ToStateID: 2, Actions: []domain.WorkflowStepAction{
				{Label: "notify desk", PluginConfigurationID: 7, ExecutionOrder: 2, DelaySeconds: 60},
				{Label: "log", PluginConfigurationID: 5, ExecutionOrder: 1},
			}},
		},
	}
	require.NoError(t, flows.Save(ctx, d.wf))

	for _, u := range []struct {
		dst  **domain.UserAccount
		name string
		role string
	}{{&d.anna, "anna", "Journalist"}, {&d.ben, "ben", "Journalist"}, {&d.cara, "cara", "Editor"}} {
		acct := &domain.UserAccount{Username: u.name, Roles: []string{u.role}}
		_, err := d.users.Save(ctx, acct, "pw")
		require.NoError(t, err)
		*u.dst = acct
	}

	jobs := scheduleFunc(func(_ context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error) {
		if d.failNext != nil {
			err := d.failNext
			d.failNext = nil
			return nil, err
		}
		d.requests = append(d.requests, req)
		return &domain.JobQueueItem{ID: int64(len(d.requests)), Name: req.Name}, nil
	})
	d.svc = NewService(d.items, flows, d.users, jobs, clock)
	return d
}

func (d *desk) state(name string) *domain.WorkflowState {
	s, _ := d.wf.StateByName(name)
	return s
}

func (d *desk) draft(t *testing.T) *domain.NewsItem {
	t.Helper()
	item, err := d.svc.CreateNewsItem(context.Background(), NewNewsItem{
		WorkflowID: d.wf.ID,
		Author:     d.anna,
		Title:      "Harbour reopens",
		Story:      "The harbour reopened on Monday.",
		OutletID:   3,
	})
	require.NoError(t, err)
	return item
}

func TestCreateNewsItemStartsAtStartState(t *testing.T) {
	d := newDesk(t)
	item := d.draft(t)

	loaded, err := d.items.FindByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", loaded.CurrentState.Name)
	assert.Equal(t, "anna", loaded.PrecalculatedCurrentActor)
	assert.Equal(t, 5, loaded.ActualWordCount)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, int64(3), loaded.OutletID.Int64)
	assert.True(t, loaded.HasActor(d.anna.ID, "Journalist"))
	assert.Empty(t, loaded.History)
}

func TestSubmitRecordsSubmissionAndEnqueuesStepActions(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	res, err := d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.anna, Comment: "ready"})
	require.NoError(t, err)
	require.NotNil(t, res.Applied.Step)
	assert.Equal(t, "Submit", res.Applied.Step.Name)

	loaded, err := d.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, loaded.History, 1)
	assert.True(t, loaded.History[0].Submitted)
	assert.True(t, loaded.IsSubmitted())
	assert.True(t, loaded.IsIntermediateState(d.wf))
	assert.Equal(t, "In Review", loaded.CurrentState.Name)
	assert.Equal(t, "Editor", loaded.PrecalculatedCurrentActor)
	assert.Equal(t, res.Item.Version, loaded.Version)
	assert.Equal(t, loaded.History[0].ID, res.Item.History[0].ID)

	require.Len(t, d.requests, 2)
	first, second := d.requests[0], d.requests[1]
	assert.Equal(t, int64(5), first.PluginConfigurationID, "lower execution order first")
	assert.Equal(t, deskTime, first.ExecutionTime)
	assert.Equal(t, int64(7), second.PluginConfigurationID)
	assert.Equal(t, deskTime.Add(60*time.Second), second.ExecutionTime)
	for _, r := range d.requests {
		assert.Equal(t, models.TypeClassNewsItem, r.TypeClass)
		assert.Equal(t, item.ID, r.TypeClassID)
		assert.Equal(t, "anna", models.PropertiesFrom(r.Parameters).Get("username"))
	}
}

func TestIllegalTransitionChangesNothing(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	_, err := d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.ben})
	assert.ErrorIs(t, err, workflow.ErrActorNotPermitted)
	assert.ErrorIs(t, err, workflow.ErrIllegalTransition)

	_, err = d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: 9999, Actor: d.anna})
	assert.ErrorIs(t, err, workflow.ErrUnknownState)

	ok, err := d.svc.CanTransition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.ben})
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := d.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.History)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Empty(t, d.requests)
}

func TestTrashNeedsUntrash(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	_, err := d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.anna})
	require.NoError(t, err)
	_, err = d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("Trash").ID, Actor: d.cara})
	require.NoError(t, err)

	back := workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.cara}
	_, err = d.svc.Transition(ctx, item.ID, back)
	assert.ErrorIs(t, err, workflow.ErrTrashed)

	back.Untrash = true
	res, err := d.svc.Transition(ctx, item.ID, back)
	require.NoError(t, err)
	assert.Len(t, res.Item.History, 3)
	assert.Equal(t, "In Review", res.Item.CurrentState.Name)
}

func TestEnqueueFailureKeepsTransition(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)
	d.failNext = errors.New("queue down")

	res, err := d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.anna})
	assert.ErrorIs(t, err, ErrEnqueue)
	require.NotNil(t, res)
	assert.Len(t, res.Jobs, 1, "the other action is still enqueued")

	loaded, err := d.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "In Review", loaded.CurrentState.Name)
}

func TestAssignActorUpdatesCurrentActor(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	updated, err := d.svc.AssignActor(ctx, item.ID, d.ben.ID, "Journalist")
	require.NoError(t, err)
	assert.Equal(t, "anna, ben", updated.PrecalculatedCurrentActor)

	again, err := d.svc.AssignActor(ctx, item.ID, d.ben.ID, "Journalist")
	require.NoError(t, err)
	assert.Equal(t, updated.Version, again.Version, "binding twice is a no-op")

	_, err = d.svc.Transition(ctx, item.ID, workflow.TransitionRequest{TargetStateID: d.state("In Review").ID, Actor: d.ben})
	assert.NoError(t, err, "a bound actor may act")
}

// racingItems lets another writer update the item between the service's
// read and its write.
type racingItems struct {
	*repository.NewsItemRepository
	race func(item *domain.NewsItem)
}

func (r *racingItems) FindByID(ctx context.Context, id int64) (*domain.NewsItem, error) {
	item, err := r.NewsItemRepository.FindByID(ctx, id)
	if err == nil && r.race != nil {
		r.race(item.Clone())
	}
	return item, err
}

func TestAssignActorLosingVersionRaceWritesNothing(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	items := &racingItems{NewsItemRepository: d.items, race: func(other *domain.NewsItem) {
		other.Story = "Edited elsewhere."
		require.NoError(t, d.items.Update(ctx, other))
	}}
	svc := NewService(items, d.svc.workflows, d.users, d.svc.jobs, d.svc.clock)

	_, err := svc.AssignActor(ctx, item.ID, d.ben.ID, "Journalist")
	require.ErrorIs(t, err, repository.ErrStaleVersion)

	loaded, err := d.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Actors, len(item.Actors), "actor binding rolled back")
	assert.Equal(t, "anna", loaded.PrecalculatedCurrentActor)
	assert.Equal(t, "Edited elsewhere.", loaded.Story)
}

func TestSaveIsVersionGuarded(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	stale, err := d.items.FindByID(ctx, item.ID)
	require.NoError(t, err)

	item.Story = "The harbour reopened on Monday after repairs."
	require.NoError(t, d.svc.Save(ctx, item))
	assert.Equal(t, 7, item.ActualWordCount)
	assert.Equal(t, int64(2), item.Version)

	stale.Story = "Overwrite"
	err = d.svc.Save(ctx, stale)
	assert.ErrorIs(t, err, repository.ErrStaleVersion)
	assert.Equal(t, int64(1), stale.Version, "a failed save leaves the item untouched")
}

func TestDeleteRemovesItem(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	item := d.draft(t)

	require.NoError(t, d.svc.Delete(ctx, item.ID))
	_, err := d.items.FindByID(ctx, item.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, d.svc.Delete(ctx, item.ID), repository.ErrNotFound)
}
