package domain

import (
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// Workflow is the editorial state graph a content item moves through.
type Workflow struct {
	ID           int64
	Name         string
	Description  string
	StartStateID int64
	EndStateID   int64
	TrashStateID int64
	States       []WorkflowState
	Steps        []WorkflowStep
	FlowChart    string
	Created      time.Time
	Updated      time.Time
}

type WorkflowState struct {
	ID               int64
	WorkflowID       int64
	Name             string
	Description      string
	ActorRole        string
	Permission       models.Permission
	ShowInInbox      bool
	TreatAsSubmitted bool
	DisplayOrder     int
}

// WorkflowStep is a named edge between two states. Applying a transition that
// matches a step enqueues the step's actions.
type WorkflowStep struct {
	ID          int64
	WorkflowID  int64
	Name        string
	FromStateID int64
	ToStateID   int64
	Actions     []WorkflowStepAction
}

type WorkflowStepAction struct {
	ID                    int64
	StepID                int64
	Label                 string
	PluginConfigurationID int64
	ExecutionOrder        int
	DelaySeconds          int
}

// State returns the state with the given id if it belongs to this workflow.
func (w *Workflow) State(id int64) (*WorkflowState, bool) {
	for i := range w.States {
		if w.States[i].ID == id {
			return &w.States[i], true
		}
	}
	return nil, false
}

func (w *Workflow) StateByName(name string) (*WorkflowState, bool) {
	for i := range w.States {
		if w.States[i].Name == name {
			return &w.States[i], true
		}
	}
	return nil, false
}

// FindStep returns the step leading from one state to another, if defined.
func (w *Workflow) FindStep(from, to int64) (*WorkflowStep, bool) {
	for i := range w.Steps {
		if w.Steps[i].FromStateID == from && w.Steps[i].ToStateID == to {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

func (w *Workflow) IsStartState(stateID int64) bool { return stateID == w.StartStateID }
func (w *Workflow) IsEndState(stateID int64) bool   { return stateID == w.EndStateID }
func (w *Workflow) IsTrashState(stateID int64) bool { return stateID == w.TrashStateID }
