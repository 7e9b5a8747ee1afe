package definitions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

var ErrUnknownConfiguration = errors.New("unknown plugin configuration")

type ConfigurationStore interface {
	Save(ctx context.Context, c *domain.PluginConfiguration) error
	FindByName(ctx context.Context, name string) (*domain.PluginConfiguration, error)
}

type WorkflowSaver interface {
	Save(ctx context.Context, wf *domain.Workflow) error
}

// Summary counts what an import wrote.
type Summary struct {
	Configurations int
	Workflows      int
}

type Importer struct {
	configs   ConfigurationStore
	workflows WorkflowSaver
}

func NewImporter(configs ConfigurationStore, workflows WorkflowSaver) *Importer {
	return &Importer{configs: configs, workflows: workflows}
}

// Import stores every configuration then every workflow of c. Rows with the
// same name are replaced. Configurations are saved twice so on_complete can
// point at configurations defined later in the same file.
func (im *Importer) Import(ctx context.Context, c *Catalogue) (Summary, error) {
	var sum Summary
	saved := make(map[string]*domain.PluginConfiguration, len(c.Configurations))
	for _, cfg := range c.Configurations {
		pc := &domain.PluginConfiguration{Name: cfg.Name, Action: cfg.Action}
		for _, p := range cfg.Properties {
			pc.Properties = append(pc.Properties, domain.PluginConfigurationProperty{Key: p.Key, Value: p.Value})
		}
		if err := im.configs.Save(ctx, pc); err != nil {
			return sum, fmt.Errorf("save configuration %q: %w", cfg.Name, err)
		}
		saved[cfg.Name] = pc
	}

	resolve := func(name string) (int64, error) {
		if pc, ok := saved[name]; ok {
			return pc.ID, nil
		}
		pc, err := im.configs.FindByName(ctx, name)
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownConfiguration, name)
		}
		if err != nil {
			return 0, err
		}
		return pc.ID, nil
	}

	for _, cfg := range c.Configurations {
		pc := saved[cfg.Name]
		pc.OnComplete = pc.OnComplete[:0]
		for _, next := range cfg.OnComplete {
			id, err := resolve(next)
			if err != nil {
				return sum, fmt.Errorf("configuration %q on_complete: %w", cfg.Name, err)
			}
			pc.OnComplete = append(pc.OnComplete, id)
		}
		if len(pc.OnComplete) > 0 {
			if err := im.configs.Save(ctx, pc); err != nil {
				return sum, fmt.Errorf("save configuration %q: %w", cfg.Name, err)
			}
		}
		sum.Configurations++
	}

	for i := range c.Workflows {
		wf, err := c.Workflows[i].toDomain(resolve)
		if err != nil {
			return sum, err
		}
		if err := im.workflows.Save(ctx, wf); err != nil {
			return sum, fmt.Errorf("save workflow %q: %w", wf.Name, err)
		}
		slog.InfoContext(ctx, "Imported workflow", "workflow", wf.Name, "states", len(wf.States), "steps", len(wf.Steps))
		sum.Workflows++
	}
	return sum, nil
}
