package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrUnknownState is returned when the target state id is not part of the workflow.
	ErrUnknownState      = fmt.Errorf("%w: unknown state", ErrIllegalTransition)
	ErrForeignState      = fmt.Errorf("%w: state belongs to another workflow", ErrIllegalTransition)
	ErrActorNotPermitted = fmt.Errorf("%w: actor may not act in the current state", ErrIllegalTransition)
	ErrTrashed           = fmt.Errorf("%w: item is in the trash", ErrIllegalTransition)
	ErrNoActor           = fmt.Errorf("%w: no acting user", ErrIllegalTransition)
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// TransitionRequest asks for a content item to move to TargetStateID.
type TransitionRequest struct {
	TargetStateID int64
	Actor         *domain.UserAccount
	Comment       string
	// Untrash must be set to move an item out of the trash state.
	Untrash bool
}

// Machine evaluates and applies transitions for a single workflow.
type Machine struct {
	wf    *domain.Workflow
	clock core.Clock
}

// NewMachine validates the workflow definition and returns a machine for it.
func NewMachine(wf *domain.Workflow, clock core.Clock) (*Machine, error) {
	if err := Validate(wf); err != nil {
		return nil, err
	}
	clock = core.OrReal(clock)
	return &Machine{wf: wf, clock: clock}, nil
}

// Validate checks that the distinguished states and every step belong to the workflow.
func Validate(wf *domain.Workflow) error {
	if wf == nil {
		return fmt.Errorf("%w: nil workflow", ErrInvalidDefinition)
	}
	for _, s := range wf.States {
		if s.WorkflowID != wf.ID {
			return fmt.Errorf("%w: state %q belongs to workflow %d", ErrInvalidDefinition, s.Name, s.WorkflowID)
		}
		if !s.Permission.Valid() {
			return fmt.Errorf("%w: state %q has permission %q", ErrInvalidDefinition, s.Name, s.Permission)
		}
	}
	for label, id := range map[string]int64{"start": wf.StartStateID, "end": wf.EndStateID, "trash": wf.TrashStateID} {
		if _, ok := wf.State(id); !ok {
			return fmt.Errorf("%w: %s state %d is not part of workflow %q", ErrInvalidDefinition, label, id, wf.Name)
		}
	}
	for _, step := range wf.Steps {
		_, fromOK := wf.State(step.FromStateID)
		_, toOK := wf.State(step.ToStateID)
		if !fromOK || !toOK {
			return fmt.Errorf("%w: step %q joins states outside workflow %q", ErrInvalidDefinition, step.Name, wf.Name)
		}
	}
	return nil
}

func (m *Machine) Workflow() *domain.Workflow { return m.wf }

// CanAct reports whether the user may act on the item in its current state:
// either bound to the item for the state's actor role, or a member of that
// role when the state grants group permission.
func (m *Machine) CanAct(item *domain.ContentItem, user *domain.UserAccount) bool {
	if user == nil {
		return false
	}
	state := item.CurrentState
	if item.HasActor(user.ID, state.ActorRole) {
		return true
	}
	return state.Permission == models.PermissionGroup && user.HasRole(state.ActorRole)
}

// CanTransition reports whether req would be accepted by Apply.
func (m *Machine) CanTransition(item *domain.ContentItem, req TransitionRequest) bool {
	_, err := m.Check(item, req)
	return err == nil
}

// Check validates req against the item and returns the target state.
func (m *Machine) Check(item *domain.ContentItem, req TransitionRequest) (*domain.WorkflowState, error) {
	if req.Actor == nil {
		return nil, ErrNoActor
	}
	if item.CurrentState.WorkflowID != m.wf.ID {
		return nil, ErrForeignState
	}
	target, ok := m.wf.State(req.TargetStateID)
	if !ok {
		return nil, ErrUnknownState
	}
	if target.WorkflowID != item.CurrentState.WorkflowID {
		return nil, ErrForeignState
	}
	if m.wf.IsTrashState(item.CurrentState.ID) && !req.Untrash {
		return nil, ErrTrashed
	}
	if !m.CanAct(item, req.Actor) {
		return nil, ErrActorNotPermitted
	}
	return target, nil
}

// Applied is the outcome of a successful transition.
type Applied struct {
	Transition domain.WorkflowStateTransition
	From       domain.WorkflowState
	// Step is the workflow step matching the transition, if one is defined.
	Step *domain.WorkflowStep
}

// Apply moves the item to the requested state. Either every field is updated
// (current state, history, current actor, updated stamp) or, on error, none is.
func (m *Machine) Apply(item *domain.ContentItem, req TransitionRequest) (*Applied, error) {
	target, err := m.Check(item, req)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	from := item.CurrentState
	t := domain.WorkflowStateTransition{
		ContentItemID: item.ID,
		StateID:       target.ID,
		StateName:     target.Name,
		UserID:        req.Actor.ID,
		Username:      req.Actor.Username,
		Timestamp:     now,
		Comment:       req.Comment,
		Submitted:     from.TreatAsSubmitted,
	}

	item.CurrentState = *target
	item.History = append(item.History, t)
	item.PrecalculatedCurrentActor = CurrentActor(item)
	item.Updated = now

	applied := &Applied{Transition: t, From: from}
	if step, ok := m.wf.FindStep(from.ID, target.ID); ok {
		applied.Step = step
	}
	return applied, nil
}

func (m *Machine) IsStartState(item *domain.ContentItem) bool { return item.IsStartState(m.wf) }
func (m *Machine) IsEndState(item *domain.ContentItem) bool   { return item.IsEndState(m.wf) }
func (m *Machine) IsTrashState(item *domain.ContentItem) bool { return item.IsTrashState(m.wf) }
func (m *Machine) IsIntermediateState(item *domain.ContentItem) bool {
	return item.IsIntermediateState(m.wf)
}

// CurrentActor is the display value cached as the item's precalculated
// current actor: the users bound to the state's role for USER states, the role
// itself for GROUP states or when nobody is bound.
func CurrentActor(item *domain.ContentItem) string {
	state := item.CurrentState
	if state.Permission == models.PermissionGroup {
		return state.ActorRole
	}
	var names []string
	for _, a := range item.ActorsForRole(state.ActorRole) {
		if a.Username != "" {
			names = append(names, a.Username)
		}
	}
	if len(names) == 0 {
		return state.ActorRole
	}
	return strings.Join(names, ", ")
}
