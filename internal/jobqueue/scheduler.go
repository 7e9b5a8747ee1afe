package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// Event types written to the job queue audit trail.
const (
	EventScheduled         = "SCHEDULED"
	EventClaimFailed       = "CLAIM_FAILED"
	EventExecuting         = "EXECUTING"
	EventCompleted         = "COMPLETED"
	EventRetry             = "RETRY"
	EventFailedPermanently = "FAILED_PERMANENTLY"
	EventRepaired          = "REPAIRED"
	EventReleased          = "RELEASED"
)

const (
	defaultHeartbeat        = 30 * time.Second
	defaultStuckBatch       = 100
	defaultWorkerQueueDepth = 10
)

var ErrNotStarted = errors.New("scheduler not started")

type JobStore interface {
	Save(ctx context.Context, job *domain.JobQueueItem) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.JobQueueItem, error)
	PromoteMatured(ctx context.Context, now time.Time) (int64, error)
	FindReady(ctx context.Context, limit int) ([]domain.JobQueueItem, error)
	Claim(ctx context.Context, id, executorID int64, started time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64, finished time.Time) error
	MarkFailed(ctx context.Context, id int64, finished, next time.Time, reason string) error
	MarkFailedCompleted(ctx context.Context, id int64, finished time.Time, reason string) error
	FindStuck(ctx context.Context, startedBefore, activeSince time.Time, limit int) ([]domain.JobQueueItem, error)
	ResetStuck(ctx context.Context, id int64, next time.Time) (bool, error)
	Release(ctx context.Context, id int64) (bool, error)
	RemoveCompleted(ctx context.Context) (int64, error)
}

type EventStore interface {
	Save(ctx context.Context, e *domain.JobQueueEvent) (int64, error)
}

type ExecutorStore interface {
	Save(ctx context.Context, e *domain.Executor) (int64, error)
	UpdateLastActive(ctx context.Context, id int64, ts time.Time) error
}

// Executor runs one claimed job. *plugin.Dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, job *domain.JobQueueItem) *plugin.ActionError
}

type Options struct {
	ExecutorName      string
	PollInterval      time.Duration
	BatchSize         int
	Workers           int
	Retry             models.RetryConfig
	StuckInterval     time.Duration
	StuckAfter        time.Duration
	HeartbeatInterval time.Duration
}

// OptionsFromSettings reads the NEWSFLOW_SCHEDULER_* settings.
func OptionsFromSettings() Options {
	return Options{
		ExecutorName: config.GetSystemSettingString(config.EXECUTOR_NAME),
		PollInterval: config.GetSystemSettingDuration(config.SCHEDULER_POLL_INTERVAL),
		BatchSize:    config.GetSystemSettingInteger(config.SCHEDULER_BATCH_SIZE),
		Workers:      config.GetSystemSettingInteger(config.SCHEDULER_WORKERS),
		Retry: models.RetryConfig{
			MaxRetryCount:    config.GetSystemSettingInteger(config.SCHEDULER_RETRY_MAX_COUNT),
			RetryIntervalMin: config.GetSystemSettingDuration(config.SCHEDULER_RETRY_MIN),
			RetryIntervalMax: config.GetSystemSettingDuration(config.SCHEDULER_RETRY_MAX),
			RetryScale:       config.GetSystemSettingInteger(config.SCHEDULER_RETRY_SCALE),
			GiveUp:           config.GetSystemSettingBool(config.SCHEDULER_RETRY_GIVE_UP),
		},
		StuckInterval:     config.GetSystemSettingDuration(config.SCHEDULER_STUCK_INTERVAL),
		StuckAfter:        config.GetSystemSettingDuration(config.SCHEDULER_STUCK_AFTER),
		HeartbeatInterval: defaultHeartbeat,
	}
}

func (o *Options) applyDefaults() {
	if o.ExecutorName == "" {
		if host, err := os.Hostname(); err == nil {
			o.ExecutorName = host
		} else {
			o.ExecutorName = "newsflow-scheduler"
		}
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.StuckInterval <= 0 {
		o.StuckInterval = time.Minute
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 10 * time.Minute
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeat
	}
}

// Scheduler polls the job queue, promotes matured jobs and runs them.
type Scheduler struct {
	jobs       JobStore
	events     EventStore
	executors  ExecutorStore
	dispatcher Executor
	clock      core.Clock
	opts       Options
	validate   *validator.Validate

	mu         sync.Mutex
	executorID int64
	queue      chan domain.JobQueueItem
	// inflight counts jobs handed to the worker pool and not yet finished.
	inflight   atomic.Int32
	wakeup     chan struct{}
}

func NewScheduler(jobs JobStore, events EventStore, executors ExecutorStore, dispatcher Executor, clock core.Clock, opts Options) *Scheduler {
	opts.applyDefaults()
	clock = core.OrReal(clock)
	return &Scheduler{
		jobs:       jobs,
		events:     events,
		executors:  executors,
		dispatcher: dispatcher,
		clock:      clock,
		opts:       opts,
		validate:   validator.New(),
		wakeup:     make(chan struct{}, 1),
	}
}

func (s *Scheduler) ExecutorID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executorID
}

// Register records this scheduler as an executor. Claims are stamped with the
// executor id so the repair sweep can tell live work from abandoned work.
func (s *Scheduler) Register(ctx context.Context) error {
	now := s.clock.Now().UTC()
	exec := &domain.Executor{Name: s.opts.ExecutorName, Started: now, LastActive: now}
	id, err := s.executors.Save(ctx, exec)
	if err != nil {
		return fmt.Errorf("register executor: %w", err)
	}
	s.mu.Lock()
	s.executorID = id
	s.mu.Unlock()
	slog.InfoContext(ctx, "Registered executor", "executor_id", id, "name", s.opts.ExecutorName)
	return nil
}

// Schedule validates req and stores it as a WAITING job.
func (s *Scheduler) Schedule(ctx context.Context, req models.ScheduleJobRequest) (*domain.JobQueueItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid schedule request: %w", err)
	}
	now := s.clock.Now().UTC()
	job := &domain.JobQueueItem{
		Name:          req.Name,
		TypeClass:     req.TypeClass,
		TypeClassID:   req.TypeClassID,
		PluginAction:  req.PluginAction,
		Status:        models.JobWaiting,
		ExecutionTime: req.ExecutionTime.UTC(),
		Added:         now,
	}
	if job.Name == "" {
		job.Name = "job-" + uuid.NewString()
	}
	if req.ExecutionTime.IsZero() {
		job.ExecutionTime = now
	}
	if req.PluginConfigurationID > 0 {
		job.PluginConfigurationID.Int64, job.PluginConfigurationID.Valid = req.PluginConfigurationID, true
	}
	for _, p := range req.Parameters {
		job.Parameters = append(job.Parameters, domain.JobQueueParameter{Name: p.Key, Value: p.Value})
	}

	if _, err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	slog.InfoContext(ctx, "Scheduled job", "job_id", job.ID, "name", job.Name, "execution_time", job.ExecutionTime)
	s.event(ctx, job.ID, EventScheduled, "Scheduled for "+job.ExecutionTime.Format(time.RFC3339))

	if job.IsMature(now) {
		s.Wakeup()
	}
	return job, nil
}

// Wakeup triggers a poll without waiting for the next tick.
func (s *Scheduler) Wakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// RunOnce promotes matured jobs, then claims and runs a batch in the calling
// goroutine. It returns the number of jobs executed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	claimed, err := s.claimBatch(ctx, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range claimed {
		s.run(ctx, job)
	}
	return len(claimed), nil
}

// Poll is RunOnce for a started scheduler: claimed jobs go to the worker pool.
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return 0, ErrNotStarted
	}
	// Claim only what idle workers can start now, so a claimed job never
	// waits in the queue with its started stamp ticking.
	free := min(s.opts.Workers-int(s.inflight.Load()), s.opts.BatchSize)
	if free <= 0 {
		slog.DebugContext(ctx, "All workers busy, skipping poll", "inflight", s.inflight.Load())
		return 0, nil
	}
	claimed, err := s.claimBatch(ctx, free)
	if err != nil {
		return 0, err
	}
	for i, job := range claimed {
		s.inflight.Add(1)
		select {
		case queue <- job:
		case <-ctx.Done():
			s.inflight.Add(-1)
			for _, left := range claimed[i:] {
				s.release(context.WithoutCancel(ctx), left)
			}
			return i, ctx.Err()
		}
	}
	return len(claimed), nil
}

// release puts a claimed job that no worker started back to READY.
func (s *Scheduler) release(ctx context.Context, job domain.JobQueueItem) {
	ok, err := s.jobs.Release(ctx, job.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to release unstarted job", "job_id", job.ID, "error", err)
		return
	}
	if ok {
		slog.InfoContext(ctx, "Released unstarted job", "job_id", job.ID)
		s.event(ctx, job.ID, EventReleased, "Released before execution, scheduler stopping")
	}
}

func (s *Scheduler) claimBatch(ctx context.Context, limit int) ([]domain.JobQueueItem, error) {
	now := s.clock.Now().UTC()
	promoted, err := s.jobs.PromoteMatured(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("promote matured jobs: %w", err)
	}
	if promoted > 0 {
		slog.DebugContext(ctx, "Promoted matured jobs", "count", promoted)
	}

	ready, err := s.jobs.FindReady(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("find ready jobs: %w", err)
	}
	executorID := s.ExecutorID()
	claimed := make([]domain.JobQueueItem, 0, len(ready))
	for _, job := range ready {
		started := s.clock.Now().UTC()
		ok, err := s.jobs.Claim(ctx, job.ID, executorID, started)
		if err != nil {
			slog.ErrorContext(ctx, "Error claiming job", "job_id", job.ID, "error", err)
			continue
		}
		if !ok {
			slog.InfoContext(ctx, "Unable to claim job, possibly picked up by another executor", "job_id", job.ID)
			s.event(ctx, job.ID, EventClaimFailed, "Failed to claim the job")
			continue
		}
		job.Status = models.JobExecution
		job.Started.Time, job.Started.Valid = started, true
		job.ExecutorID.Int64, job.ExecutorID.Valid = executorID, executorID != 0
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// run executes a claimed job and records the outcome. Nothing an action does
// escapes this function.
func (s *Scheduler) run(ctx context.Context, job domain.JobQueueItem) {
	slog.InfoContext(ctx, "Running job", "job_id", job.ID, "name", job.Name, "retry_count", job.RetryCount)
	s.event(ctx, job.ID, EventExecuting, "Executing")

	failure := s.dispatcher.Execute(ctx, &job)
	finished := s.clock.Now().UTC()

	switch {
	case failure == nil:
		if err := s.jobs.MarkCompleted(ctx, job.ID, finished); err != nil {
			slog.ErrorContext(ctx, "Failed to mark job completed", "job_id", job.ID, "error", err)
			return
		}
		slog.InfoContext(ctx, "Job completed", "job_id", job.ID, "duration_ms", finished.Sub(job.Started.Time).Milliseconds())
		s.event(ctx, job.ID, EventCompleted, "Completed")

	case failure.IsPermanent() || s.opts.Retry.Exhausted(job.RetryCount):
		reason := failure.Err.Error()
		if err := s.jobs.MarkFailedCompleted(ctx, job.ID, finished, reason); err != nil {
			slog.ErrorContext(ctx, "Failed to mark job failed permanently", "job_id", job.ID, "error", err)
			return
		}
		slog.ErrorContext(ctx, "Job failed permanently", "job_id", job.ID, "permanent", failure.IsPermanent(),
			"retry_count", job.RetryCount, "error", failure.Err)
		s.event(ctx, job.ID, EventFailedPermanently, reason)

	default:
		next := finished.Add(s.opts.Retry.Delay(job.RetryCount))
		reason := failure.Err.Error()
		if err := s.jobs.MarkFailed(ctx, job.ID, finished, next, reason); err != nil {
			slog.ErrorContext(ctx, "Failed to mark job for retry", "job_id", job.ID, "error", err)
			return
		}
		slog.WarnContext(ctx, "Job failed, will retry", "job_id", job.ID, "retry_count", job.RetryCount+1,
			"next_execution", next, "error", failure.Err)
		s.event(ctx, job.ID, EventRetry, fmt.Sprintf("Retry %d at %s: %s", job.RetryCount+1, next.Format(time.RFC3339), reason))
	}
}

// RepairStuck resets jobs left in EXECUTION by an executor that stopped
// heartbeating. They run again, so actions must tolerate a repeat.
func (s *Scheduler) RepairStuck(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.opts.StuckAfter)
	stuck, err := s.jobs.FindStuck(ctx, cutoff, cutoff, defaultStuckBatch)
	if err != nil {
		return 0, fmt.Errorf("find stuck jobs: %w", err)
	}
	repaired := 0
	for _, job := range stuck {
		slog.WarnContext(ctx, "Repairing stuck job", "job_id", job.ID, "previous_executor", job.ExecutorID.Int64)
		ok, err := s.jobs.ResetStuck(ctx, job.ID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reset stuck job", "job_id", job.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		repaired++
		s.event(ctx, job.ID, EventRepaired, fmt.Sprintf("Repaired and rescheduled, previous executor was: %d", job.ExecutorID.Int64))
	}
	if repaired > 0 {
		s.Wakeup()
	}
	return repaired, nil
}

// RemoveCompleted deletes COMPLETED jobs with their parameters and events.
func (s *Scheduler) RemoveCompleted(ctx context.Context) (int64, error) {
	n, err := s.jobs.RemoveCompleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("remove completed jobs: %w", err)
	}
	slog.InfoContext(ctx, "Removed completed jobs", "count", n)
	return n, nil
}

// Start registers the executor, starts the worker pool and the heartbeat and
// repair loops, and polls until ctx is cancelled. Running workers finish
// their job before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Register(ctx); err != nil {
		return err
	}

	queueSize := max(s.opts.BatchSize, s.opts.Workers)
	if queueSize <= 0 {
		queueSize = defaultWorkerQueueDepth
	}
	queue := make(chan domain.JobQueueItem, queueSize)
	s.mu.Lock()
	s.queue = queue
	s.mu.Unlock()

	var workers sync.WaitGroup
	slog.InfoContext(ctx, "Starting scheduler", "workers", s.opts.Workers, "queue_size", queueSize)
	for i := 0; i < s.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			s.worker(context.WithoutCancel(ctx), id, queue, ctx.Done())
		}(i)
	}
	go s.every(ctx, s.opts.HeartbeatInterval, s.heartbeat)
	go s.every(ctx, s.opts.StuckInterval, func(ctx context.Context) {
		if _, err := s.RepairStuck(ctx); err != nil {
			slog.ErrorContext(ctx, "Error repairing stuck jobs", "error", err)
		}
	})

	slog.InfoContext(ctx, "Scheduler started", "poll_interval", s.opts.PollInterval.String())
	s.pollLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Scheduler stopping due to context cancel")
			workers.Wait()
			s.drain(context.WithoutCancel(ctx), queue)
			return nil
		case <-s.clock.After(s.opts.PollInterval):
			s.pollLogged(ctx)
		case <-s.wakeup:
			s.pollLogged(ctx)
		}
	}
}

func (s *Scheduler) pollLogged(ctx context.Context) {
	if _, err := s.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Error polling job queue", "error", err)
	}
}

// worker runs queued jobs until stop is closed. ctx is not cancelled with the
// scheduler so that a job already claimed runs to completion.
func (s *Scheduler) worker(ctx context.Context, id int, queue <-chan domain.JobQueueItem, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case job := <-queue:
			slog.DebugContext(ctx, "Worker starting job", "worker_id", id, "job_id", job.ID)
			s.run(ctx, job)
			s.inflight.Add(-1)
		}
	}
}

// drain releases jobs still queued once every worker has stopped.
func (s *Scheduler) drain(ctx context.Context, queue <-chan domain.JobQueueItem) {
	for {
		select {
		case job := <-queue:
			s.inflight.Add(-1)
			s.release(ctx, job)
		default:
			return
		}
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	id := s.ExecutorID()
	if err := s.executors.UpdateLastActive(ctx, id, s.clock.Now().UTC()); err != nil {
		slog.ErrorContext(ctx, "Failed to update executor last_active", "executor_id", id, "error", err)
		return
	}
	slog.DebugContext(ctx, "Updated executor last_active", "executor_id", id)
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			fn(ctx)
		}
	}
}

func (s *Scheduler) event(ctx context.Context, jobID int64, typ, text string) {
	_, _ = s.events.Save(ctx, &domain.JobQueueEvent{
		JobQueueID: jobID,
		ExecutorID: s.ExecutorID(),
		Type:       typ,
		Text:       text,
		DateTime:   s.clock.Now().UTC(),
	})
}
