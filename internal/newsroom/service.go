package newsroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/internal/workflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// ErrEnqueue is returned by Transition when the transition was stored but one
// or more step actions could not be put on the job queue.
var ErrEnqueue = errors.New("step action not enqueued")

type NewsItemStore interface {
	Create(ctx context.Context, item *domain.NewsItem) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.NewsItem, error)
	ApplyTransition(ctx context.Context, item *domain.NewsItem, t *domain.WorkflowStateTransition) error
	Update(ctx context.Context, item *domain.NewsItem) error
	AddActorAndUpdate(ctx context.Context, item *domain.NewsItem, actor *domain.ContentItemActor) error
	Delete(ctx context.Context, id int64) error
}

type WorkflowStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Workflow, error)
	FindByStateID(ctx context.Context, stateID int64) (*domain.Workflow, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.UserAccount, error)
}

// JobScheduler puts step actions on the job queue. *jobqueue.Scheduler
// implements it.
type JobScheduler interface {
	Schedule(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error)
}

// NewNewsItem is the input for CreateNewsItem.
type NewNewsItem struct {
	WorkflowID      int64
	Author          *domain.UserAccount
	Title           string
	Story           string
	TargetWordCount int
	OutletID        int64
	EditionID       int64
	AssignmentID    int64
}

// TransitionResult is what Transition stored.
type TransitionResult struct {
	Item    *domain.NewsItem
	Applied *workflow.Applied
	Jobs    []*domain.JobQueueItem
}

// Service owns the lifecycle of news items: creation at the start state,
// transitions with their step actions, actor binding and edits.
type Service struct {
	items     NewsItemStore
	workflows WorkflowStore
	users     UserFinder
	jobs      JobScheduler
	clock     core.Clock
}

func NewService(items NewsItemStore, workflows WorkflowStore, users UserFinder, jobs JobScheduler, clock core.Clock) *Service {
	clock = core.OrReal(clock)
	return &Service{items: items, workflows: workflows, users: users, jobs: jobs, clock: clock}
}

// CreateNewsItem places a new item at the workflow's start state with the
// author bound to the start state's role.
func (s *Service) CreateNewsItem(ctx context.Context, req NewNewsItem) (*domain.NewsItem, error) {
	if req.Author == nil {
		return nil, workflow.ErrNoActor
	}
	wf, err := s.workflows.FindByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %d: %w", req.WorkflowID, err)
	}
	if _, err := workflow.NewMachine(wf, s.clock); err != nil {
		return nil, err
	}
	startState, _ := wf.State(wf.StartStateID)

	now := s.clock.Now().UTC()
	item := &domain.NewsItem{
		ContentItem: domain.ContentItem{
			CurrentState: *startState,
			Actors: []domain.ContentItemActor{
				{UserID: req.Author.ID, Username: req.Author.Username, Role: startState.ActorRole},
			},
			Created: now,
			Updated: now,
		},
		Title:           req.Title,
		Story:           req.Story,
		TargetWordCount: req.TargetWordCount,
	}
	setID(&item.OutletID.Int64, &item.OutletID.Valid, req.OutletID)
	setID(&item.EditionID.Int64, &item.EditionID.Valid, req.EditionID)
	setID(&item.AssignmentID.Int64, &item.AssignmentID.Valid, req.AssignmentID)
	item.UpdateWordCount()
	item.PrecalculatedCurrentActor = workflow.CurrentActor(&item.ContentItem)

	if _, err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create news item: %w", err)
	}
	slog.InfoContext(ctx, "Created news item", "item_id", item.ID, "workflow", wf.Name, "author", req.Author.Username)
	return item, nil
}

func setID(dst *int64, valid *bool, id int64) {
	if id > 0 {
		*dst, *valid = id, true
	}
}

// Transition moves the item to req.TargetStateID. The state change and the
// history record are stored together under the item's version; on
// ErrStaleVersion nothing is stored. Actions of a matching workflow step are
// enqueued afterwards.
func (s *Service) Transition(ctx context.Context, itemID int64, req workflow.TransitionRequest) (*TransitionResult, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	machine, err := s.machineFor(ctx, item)
	if err != nil {
		return nil, err
	}

	next := item.Clone()
	applied, err := machine.Apply(&next.ContentItem, req)
	if err != nil {
		return nil, err
	}
	if err := s.items.ApplyTransition(ctx, next, &applied.Transition); err != nil {
		return nil, err
	}
	next.History[len(next.History)-1] = applied.Transition
	slog.InfoContext(ctx, "Applied transition", "item_id", itemID, "from", applied.From.Name, "to", next.CurrentState.Name,
		"actor", req.Actor.Username, "submitted", applied.Transition.Submitted)

	res := &TransitionResult{Item: next, Applied: applied}
	if applied.Step == nil {
		return res, nil
	}
	jobs, err := s.enqueueStep(ctx, next, applied.Step, req.Actor)
	res.Jobs = jobs
	return res, err
}

func (s *Service) enqueueStep(ctx context.Context, item *domain.NewsItem, step *domain.WorkflowStep, actor *domain.UserAccount) ([]*domain.JobQueueItem, error) {
	actions := append([]domain.WorkflowStepAction(nil), step.Actions...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].ExecutionOrder < actions[j].ExecutionOrder })

	now := s.clock.Now().UTC()
	var (
		jobs []*domain.JobQueueItem
		errs []error
	)
	for _, a := range actions {
		req := models.ScheduleJobRequest{
			Name:                  fmt.Sprintf("%s-%d-%d", step.Name, item.ID, a.ExecutionOrder),
			TypeClass:             models.TypeClassNewsItem,
			TypeClassID:           item.ID,
			PluginConfigurationID: a.PluginConfigurationID,
			ExecutionTime:         now.Add(time.Duration(a.DelaySeconds) * time.Second),
			Parameters: []models.Property{
				{Key: plugin.ParamUsername, Value: actor.Username},
				{Key: "step", Value: step.Name},
				{Key: "step_action", Value: strconv.FormatInt(a.ID, 10)},
			},
		}
		job, err := s.jobs.Schedule(ctx, req)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to enqueue step action", "item_id", item.ID, "step", step.Name,
				"configuration_id", a.PluginConfigurationID, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s #%d: %w", ErrEnqueue, step.Name, a.ExecutionOrder, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// AssignActor binds a user to the item for role and refreshes the cached
// current actor. Both are written together under the item's version.
func (s *Service) AssignActor(ctx context.Context, itemID, userID int64, role string) (*domain.NewsItem, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.HasActor(userID, role) {
		return item, nil
	}
	next := item.Clone()
	next.Actors = append(next.Actors, domain.ContentItemActor{UserID: user.ID, Username: user.Username, Role: role})
	next.UpdateWordCount()
	next.PrecalculatedCurrentActor = workflow.CurrentActor(&next.ContentItem)
	if err := s.items.AddActorAndUpdate(ctx, next, &next.Actors[len(next.Actors)-1]); err != nil {
		return nil, err
	}
	return next, nil
}

// Save writes the item's editable fields under its version. The word count
// and cached current actor are recomputed first.
func (s *Service) Save(ctx context.Context, item *domain.NewsItem) error {
	next := item.Clone()
	next.UpdateWordCount()
	next.PrecalculatedCurrentActor = workflow.CurrentActor(&next.ContentItem)
	if err := s.items.Update(ctx, next); err != nil {
		return err
	}
	*item = *next
	return nil
}

// Delete removes the item. Its history and actors go with it.
func (s *Service) Delete(ctx context.Context, itemID int64) error {
	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deleted news item", "item_id", itemID)
	return nil
}

// CanTransition reports whether req would be accepted for the item.
func (s *Service) CanTransition(ctx context.Context, itemID int64, req workflow.TransitionRequest) (bool, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return false, err
	}
	machine, err := s.machineFor(ctx, item)
	if err != nil {
		return false, err
	}
	return machine.CanTransition(&item.ContentItem, req), nil
}

func (s *Service) machineFor(ctx context.Context, item *domain.NewsItem) (*workflow.Machine, error) {
	wf, err := s.workflows.FindByStateID(ctx, item.CurrentState.ID)
	if err != nil {
		return nil, fmt.Errorf("workflow of state %d: %w", item.CurrentState.ID, err)
	}
	return workflow.NewMachine(wf, s.clock)
}
