package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// Parameters read from a job when the target is a catalogue rendition.
const (
	ParamUsername    = "username"
	ParamCatalogueID = "catalogue_id"
	ParamMediaItemID = "media_item_id"
	ParamFilename    = "filename"
	ParamContentType = "content_type"
)

const EventChained = "CHAINED"

var ErrUnknownAction = errors.New("unknown plugin action")

type ConfigurationFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.PluginConfiguration, error)
}

type NewsItemFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.NewsItem, error)
}

type EditionFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Edition, error)
}

type NewswireServiceFinder interface {
	FindServiceByID(ctx context.Context, id int64) (*domain.NewswireService, error)
}

// JobScheduler queues chained jobs. *jobqueue.Scheduler implements it.
type JobScheduler interface {
	Schedule(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error)
}

// ScheduleFunc adapts a function to JobScheduler.
type ScheduleFunc func(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error)

func (f ScheduleFunc) Schedule(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error) {
	return f(ctx, req)
}

type EventSaver interface {
	Save(ctx context.Context, e *domain.JobQueueEvent) (int64, error)
}

// Targets resolves the entity a job points at.
type Targets struct {
	NewsItems NewsItemFinder
	Editions  EditionFinder
	Newswire  NewswireServiceFinder
}

// Dispatcher resolves a job's action in the registry and runs it against the
// job's target.
type Dispatcher struct {
	registry *Registry
	pctx     PluginContext
	configs  ConfigurationFinder
	targets  Targets
	jobs     JobScheduler
	events   EventSaver
	clock    core.Clock
	tracer   trace.Tracer
}

func NewDispatcher(registry *Registry, pctx PluginContext, configs ConfigurationFinder, targets Targets,
	jobs JobScheduler, events EventSaver, clock core.Clock) *Dispatcher {
	clock = core.OrReal(clock)
	return &Dispatcher{
		registry: registry,
		pctx:     pctx,
		configs:  configs,
		targets:  targets,
		jobs:     jobs,
		events:   events,
		clock:    clock,
		tracer:   otel.Tracer("github.com/RealZimboGuy/newsflow/internal/plugin"),
	}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Execute runs the job's action. A nil result means success; otherwise the
// error's Kind tells the scheduler whether the job may be retried. An action
// that panics is a permanent failure.
func (d *Dispatcher) Execute(ctx context.Context, job *domain.JobQueueItem) (result *ActionError) {
	ctx, span := d.tracer.Start(ctx, "plugin.execute", trace.WithAttributes(
		attribute.Int64("newsflow.job.id", job.ID),
		attribute.String("newsflow.job.type_class", job.TypeClass),
		attribute.Int64("newsflow.job.type_class_id", job.TypeClassID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Plugin action panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			result = &ActionError{Kind: KindPermanent, Err: fmt.Errorf("action panicked: %v", r)}
		}
		if result != nil {
			span.RecordError(result)
			span.SetStatus(codes.Error, result.Error())
			span.SetAttributes(attribute.Bool("newsflow.failure.permanent", result.IsPermanent()))
		}
	}()

	cfg, err := d.configuration(ctx, job)
	if err != nil {
		return Classify(err)
	}
	span.SetAttributes(attribute.String("newsflow.action", cfg.Action))

	params := job.ParameterMap()
	if u := params.Get(ParamUsername); u != "" {
		ctx = core.WithUsername(ctx, u)
	}
	ctx = core.WithJobID(ctx, job.ID)

	if err := d.invoke(ctx, job, cfg, params); err != nil {
		return Classify(err)
	}

	d.chain(ctx, job, cfg)
	return nil
}

// configuration returns the job's plugin configuration, or a bare one built
// from PluginAction when the job has none.
func (d *Dispatcher) configuration(ctx context.Context, job *domain.JobQueueItem) (*domain.PluginConfiguration, error) {
	if !job.PluginConfigurationID.Valid {
		return &domain.PluginConfiguration{Name: job.PluginAction, Action: job.PluginAction}, nil
	}
	cfg, err := d.configs.FindByID(ctx, job.PluginConfigurationID.Int64)
	if err != nil {
		return nil, fmt.Errorf("plugin configuration %d: %w", job.PluginConfigurationID.Int64, err)
	}
	return cfg, nil
}

func (d *Dispatcher) invoke(ctx context.Context, job *domain.JobQueueItem, cfg *domain.PluginConfiguration, params models.Properties) error {
	e, ok := d.registry.get(cfg.Action)
	if !ok {
		return Permanent(fmt.Errorf("%w: %q", ErrUnknownAction, cfg.Action))
	}
	inv := Invocation{Context: d.pctx, Properties: cfg.PropertyMap(), Parameters: params, Job: job}

	slog.InfoContext(ctx, "Executing plugin action", "job_id", job.ID, "action", cfg.Action, "capability", e.Capability,
		"type_class", job.TypeClass, "type_class_id", job.TypeClassID)

	switch e.Capability {
	case models.CapabilityWorkflowAction:
		if err := expectType(job, models.TypeClassNewsItem); err != nil {
			return err
		}
		item, err := d.targets.NewsItems.FindByID(ctx, job.TypeClassID)
		if err != nil {
			return fmt.Errorf("news item %d: %w", job.TypeClassID, err)
		}
		return e.workflow().Execute(ctx, inv, item)

	case models.CapabilityEditionAction:
		if err := expectType(job, models.TypeClassEdition); err != nil {
			return err
		}
		ed, err := d.targets.Editions.FindByID(ctx, job.TypeClassID)
		if err != nil {
			return fmt.Errorf("edition %d: %w", job.TypeClassID, err)
		}
		return e.edition().Execute(ctx, inv, ed)

	case models.CapabilityNewswireDecoder:
		if err := expectType(job, models.TypeClassNewswireService); err != nil {
			return err
		}
		svc, err := d.targets.Newswire.FindServiceByID(ctx, job.TypeClassID)
		if err != nil {
			return fmt.Errorf("newswire service %d: %w", job.TypeClassID, err)
		}
		return e.decoder().Decode(ctx, inv, svc)

	case models.CapabilityCatalogueHook:
		r, err := rendition(job, params)
		if err != nil {
			return err
		}
		return e.catalogue().Execute(ctx, inv, r)
	}
	return Permanentf("action %q has unsupported capability %s", cfg.Action, e.Capability)
}

func expectType(job *domain.JobQueueItem, typeClass string) error {
	if job.TypeClass != typeClass {
		return Permanentf("job targets %s but the action expects %s", job.TypeClass, typeClass)
	}
	return nil
}

func rendition(job *domain.JobQueueItem, params models.Properties) (domain.Rendition, error) {
	catalogueID, ok := params.Int64(ParamCatalogueID)
	if !ok {
		return domain.Rendition{}, Permanentf("job %d: parameter %s is missing or not a number", job.ID, ParamCatalogueID)
	}
	mediaItemID, ok := params.Int64(ParamMediaItemID)
	if !ok {
		mediaItemID = job.TypeClassID
	}
	filename := params.Get(ParamFilename)
	if filename == "" {
		return domain.Rendition{}, Permanentf("job %d: parameter %s is missing", job.ID, ParamFilename)
	}
	return domain.Rendition{
		CatalogueID: catalogueID,
		MediaItemID: mediaItemID,
		Filename:    filename,
		ContentType: params.Get(ParamContentType),
	}, nil
}

// chain schedules a job for every on-complete configuration. Failures are
// logged against the parent job and do not fail it.
func (d *Dispatcher) chain(ctx context.Context, parent *domain.JobQueueItem, cfg *domain.PluginConfiguration) {
	if len(cfg.OnComplete) == 0 {
		return
	}
	now := d.clock.Now().UTC()
	params := make([]models.Property, 0, len(parent.Parameters))
	for _, p := range parent.Parameters {
		params = append(params, models.Property{Key: p.Name, Value: p.Value})
	}
	for _, nextID := range cfg.OnComplete {
		next, err := d.jobs.Schedule(ctx, models.ScheduleJobRequest{
			Name:                  fmt.Sprintf("%s-chain-%d", parent.Name, nextID),
			TypeClass:             parent.TypeClass,
			TypeClassID:           parent.TypeClassID,
			PluginConfigurationID: nextID,
			ExecutionTime:         now,
			Parameters:            params,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to chain on-complete job", "job_id", parent.ID, "configuration_id", nextID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Chained on-complete job", "job_id", parent.ID, "next_job_id", next.ID, "configuration_id", nextID)
		_, _ = d.events.Save(ctx, &domain.JobQueueEvent{
			JobQueueID: parent.ID,
			ExecutorID: parent.ExecutorID.Int64,
			Type:       EventChained,
			Text:       fmt.Sprintf("Scheduled job %d for configuration %d", next.ID, nextID),
			DateTime:   now,
		})
	}
}
