// Package definitions reads the TOML catalogue of plugin configurations and
// workflows and imports it into the database.
package definitions

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/RealZimboGuy/newsflow/internal/workflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

var ErrInvalidCatalogue = errors.New("invalid catalogue")

// Catalogue is the file form of the definitions an operator manages.
type Catalogue struct {
	Configurations []Configuration `toml:"configuration" validate:"dive"`
	Workflows      []Workflow      `toml:"workflow" validate:"dive"`
}

type Configuration struct {
	Name       string     `toml:"name" validate:"required"`
	Action     string     `toml:"action" validate:"required"`
	Properties []Property `toml:"property" validate:"dive"`
	OnComplete []string   `toml:"on_complete" validate:"dive,required"`
}

type Property struct {
	Key   string `toml:"key" validate:"required"`
	Value string `toml:"value"`
}

// Workflow names its start, end and trash states by state name.
type Workflow struct {
	Name        string  `toml:"name" validate:"required"`
	Description string  `toml:"description"`
	Start       string  `toml:"start" validate:"required"`
	End         string  `toml:"end" validate:"required"`
	Trash       string  `toml:"trash" validate:"required"`
	States      []State `toml:"state" validate:"required,dive"`
	Steps       []Step  `toml:"step" validate:"dive"`
}

type State struct {
	Name             string `toml:"name" validate:"required"`
	Description      string `toml:"description"`
	Role             string `toml:"role" validate:"required"`
	Permission       string `toml:"permission" validate:"required,oneof=USER GROUP"`
	ShowInInbox      bool   `toml:"show_in_inbox"`
	TreatAsSubmitted bool   `toml:"treat_as_submitted"`
}

type Step struct {
	Name    string       `toml:"name" validate:"required"`
	From    string       `toml:"from" validate:"required"`
	To      string       `toml:"to" validate:"required"`
	Actions []StepAction `toml:"action" validate:"dive"`
}

// StepAction refers to a configuration by name.
type StepAction struct {
	Label         string `toml:"label"`
	Configuration string `toml:"configuration" validate:"required"`
	Order         int    `toml:"order"`
	DelaySeconds  int    `toml:"delay_seconds" validate:"gte=0"`
}

// Load parses and validates the catalogue at path.
func Load(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalogue. Unknown keys are rejected so typos surface
// instead of silently dropping a setting.
func Parse(r io.Reader) (*Catalogue, error) {
	var c Catalogue
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalogue, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required fields and every name reference inside the
// catalogue. Configuration names used by steps and on_complete lists may also
// refer to configurations already stored; those are resolved on import.
func (c *Catalogue) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogue, err)
	}
	seen := map[string]bool{}
	for _, cfg := range c.Configurations {
		if seen[cfg.Name] {
			return fmt.Errorf("%w: configuration %q defined twice", ErrInvalidCatalogue, cfg.Name)
		}
		seen[cfg.Name] = true
	}
	flows := map[string]bool{}
	for i := range c.Workflows {
		w := &c.Workflows[i]
		if flows[w.Name] {
			return fmt.Errorf("%w: workflow %q defined twice", ErrInvalidCatalogue, w.Name)
		}
		flows[w.Name] = true
		if _, err := w.toDomain(func(string) (int64, error) { return 0, nil }); err != nil {
			return err
		}
	}
	return nil
}

// toDomain builds the workflow entity. State ids are positional keys which the
// repository rewrites on save; configuration names are mapped through resolve.
func (w *Workflow) toDomain(resolve func(name string) (int64, error)) (*domain.Workflow, error) {
	wf := &domain.Workflow{Name: w.Name, Description: w.Description}
	keys := make(map[string]int64, len(w.States))
	for i, s := range w.States {
		if _, dup := keys[s.Name]; dup {
			return nil, fmt.Errorf("%w: workflow %q: state %q defined twice", ErrInvalidCatalogue, w.Name, s.Name)
		}
		key := int64(i + 1)
		keys[s.Name] = key
		wf.States = append(wf.States, domain.WorkflowState{
			ID:               key,
			Name:             s.Name,
			Description:      s.Description,
			ActorRole:        s.Role,
			Permission:       models.Permission(s.Permission),
			ShowInInbox:      s.ShowInInbox,
			TreatAsSubmitted: s.TreatAsSubmitted,
			DisplayOrder:     i,
		})
	}
	state := func(what, name string) (int64, error) {
		id, ok := keys[name]
		if !ok {
			return 0, fmt.Errorf("%w: workflow %q: %s state %q is not defined", ErrInvalidCatalogue, w.Name, what, name)
		}
		return id, nil
	}
	var err error
	if wf.StartStateID, err = state("start", w.Start); err != nil {
		return nil, err
	}
	if wf.EndStateID, err = state("end", w.End); err != nil {
		return nil, err
	}
	if wf.TrashStateID, err = state("trash", w.Trash); err != nil {
		return nil, err
	}

	for _, st := range w.Steps {
		step := domain.WorkflowStep{Name: st.Name}
		if step.FromStateID, err = state("step "+st.Name+" from", st.From); err != nil {
			return nil, err
		}
		if step.ToStateID, err = state("step "+st.Name+" to", st.To); err != nil {
			return nil, err
		}
		for _, a := range st.Actions {
			cfgID, err := resolve(a.Configuration)
			if err != nil {
				return nil, fmt.Errorf("workflow %q step %q: %w", w.Name, st.Name, err)
			}
			step.Actions = append(step.Actions, domain.WorkflowStepAction{
				Label:                 a.Label,
				PluginConfigurationID: cfgID,
				ExecutionOrder:        a.Order,
				DelaySeconds:          a.DelaySeconds,
			})
		}
		wf.Steps = append(wf.Steps, step)
	}
	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}
