package jobqueue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/internal/testsupport"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

var start = time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)

// executorFunc adapts a function to the Executor interface.
type executorFunc func(ctx context.Context, job *domain.JobQueueItem) *plugin.ActionError

func (f executorFunc) Execute(ctx context.Context, job *domain.JobQueueItem) *plugin.ActionError {
	return f(ctx, job)
}

type harness struct {
	clock  *testsupport.FakeClock
	jobs   *repository.JobQueueRepository
	events *repository.JobQueueEventRepository
	execs  *repository.ExecutorRepository
	calls  atomic.Int32
	result atomic.Pointer[plugin.ActionError]
	sched  *Scheduler
}

func newHarness(t *testing.T, retry models.RetryConfig) *harness {
	t.Helper()
	db := testsupport.OpenSQLite(t)
	h := &harness{clock: testsupport.NewFakeClock(start)}
	h.jobs = repository.NewJobQueueRepository(db, repository.SQLite, h.clock)
	h.events = repository.NewJobQueueEventRepository(db, repository.SQLite, h.clock)
	h.execs = repository.NewExecutorRepository(db, repository.SQLite, h.clock)
	exec := executorFunc(func(context.Context, *domain.JobQueueItem) *plugin.ActionError {
		h.calls.Add(1)
		return h.result.Load()
	})
	h.sched = NewScheduler(h.jobs, h.events, h.execs, exec, h.clock, Options{
		ExecutorName: "test",
		BatchSize:    5,
		Workers:      1,
		Retry:        retry,
		StuckAfter:   10 * time.Minute,
	})
	return h
}

func (h *harness) fail(kind plugin.FailureKind, msg string) {
	h.result.Store(&plugin.ActionError{Kind: kind, Err: errors.New(msg)})
}

func (h *harness) status(t *testing.T, id int64) *domain.JobQueueItem {
	t.Helper()
	job, err := h.jobs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func logRequest(at time.Time) models.ScheduleJobRequest {
	return models.ScheduleJobRequest{
		TypeClass:     models.TypeClassNewsItem,
		TypeClassID:   42,
		PluginAction:  "log",
		ExecutionTime: at,
		Parameters:    []models.Property{{Key: "username", Value: "anna"}},
	}
}

func TestJobMaturesAfterSixtySeconds(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	ctx := context.Background()
	require.NoError(t, h.sched.Register(ctx))

	job, err := h.sched.Schedule(ctx, logRequest(start.Add(60*time.Second)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.Name, "job-"))

	n, err := h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.JobWaiting, h.status(t, job.ID).Status)

	h.clock.Add(60 * time.Second)
	n, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done := h.status(t, job.ID)
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, h.sched.ExecutorID(), done.ExecutorID.Int64)
	assert.Equal(t, int32(1), h.calls.Load())

	events, err := h.events.FindAllByJobID(ctx, job.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventCompleted, EventExecuting, EventScheduled}, types)
}

func TestTransientFailureIsRetried(t *testing.T) {
	h := newHarness(t, models.RetryConfig{MaxRetryCount: 4, RetryIntervalMin: time.Minute, RetryIntervalMax: 5 * time.Minute})
	ctx := context.Background()
	job, err := h.sched.Schedule(ctx, logRequest(start))
	require.NoError(t, err)

	h.fail(plugin.KindTransient, "cms unavailable")
	_, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)

	failed := h.status(t, job.ID)
	assert.Equal(t, models.JobFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, start.Add(time.Minute), failed.ExecutionTime)
	assert.Equal(t, "cms unavailable", failed.LastError.String)

	n, err := h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")

	h.result.Store(nil)
	h.clock.Add(time.Minute)
	n, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.JobCompleted, h.status(t, job.ID).Status)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestPermanentFailureIsNotReinvoked(t *testing.T) {
	h := newHarness(t, models.RetryConfig{MaxRetryCount: 3, RetryIntervalMin: time.Minute, RetryIntervalMax: time.Hour})
	ctx := context.Background()
	job, err := h.sched.Schedule(ctx, logRequest(start))
	require.NoError(t, err)

	h.fail(plugin.KindPermanent, "endpoint returned 400")
	_, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailedCompleted, h.status(t, job.ID).Status)

	h.clock.Add(24 * time.Hour)
	n, err := h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestGiveUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t, models.RetryConfig{MaxRetryCount: 1, RetryIntervalMin: time.Second, RetryIntervalMax: time.Second, GiveUp: true})
	ctx := context.Background()
	job, err := h.sched.Schedule(ctx, logRequest(start))
	require.NoError(t, err)
	h.fail(plugin.KindTransient, "timeout")

	_, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, h.status(t, job.ID).Status)

	h.clock.Add(time.Second)
	_, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailedCompleted, h.status(t, job.ID).Status)
}

func TestScheduleValidation(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	ctx := context.Background()

	_, err := h.sched.Schedule(ctx, models.ScheduleJobRequest{PluginAction: "log"})
	assert.Error(t, err, "type class is required")

	_, err = h.sched.Schedule(ctx, models.ScheduleJobRequest{TypeClass: models.TypeClassEdition, TypeClassID: 1})
	assert.Error(t, err, "either an action or a configuration is required")

	job, err := h.sched.Schedule(ctx, models.ScheduleJobRequest{Name: "nightly", TypeClass: models.TypeClassEdition, PluginConfigurationID: 3})
	require.NoError(t, err)
	loaded := h.status(t, job.ID)
	assert.Equal(t, "nightly", loaded.Name)
	assert.Equal(t, start, loaded.ExecutionTime, "zero execution time means now")
	assert.Equal(t, int64(3), loaded.PluginConfigurationID.Int64)
}

func TestRepairStuckJobs(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	ctx := context.Background()
	require.NoError(t, h.sched.Register(ctx))
	job, err := h.sched.Schedule(ctx, logRequest(start))
	require.NoError(t, err)

	claimed, err := h.sched.claimBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	h.clock.Add(5 * time.Minute)
	n, err := h.sched.RepairStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not stuck long enough")

	h.clock.Add(6 * time.Minute)
	n, err = h.sched.RepairStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.JobFailed, h.status(t, job.ID).Status)

	ran, err := h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, models.JobCompleted, h.status(t, job.ID).Status)
}

func TestStartRunsJobsOnWorkers(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	job, err := h.sched.Schedule(context.Background(), logRequest(start))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- h.sched.Start(ctx) }()

	require.Eventually(t, func() bool {
		j, err := h.jobs.FindByID(context.Background(), job.ID)
		return err == nil && j.Status == models.JobCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	_, err = h.sched.Poll(context.Background())
	assert.NoError(t, err, "a stopped scheduler keeps its queue")
}

func TestStopLeavesUnclaimedJobsReady(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	running := make(chan struct{}, 3)
	unblock := make(chan struct{})
	var calls atomic.Int32
	blocking := executorFunc(func(context.Context, *domain.JobQueueItem) *plugin.ActionError {
		calls.Add(1)
		running <- struct{}{}
		<-unblock
		return nil
	})
	sched := NewScheduler(h.jobs, h.events, h.execs, blocking, h.clock, Options{ExecutorName: "test", BatchSize: 5, Workers: 1})

	ctx := context.Background()
	var ids []int64
	for range 3 {
		job, err := sched.Schedule(ctx, logRequest(start))
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan error, 1)
	go func() { stopped <- sched.Start(runCtx) }()
	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("no job started")
	}
	cancel()
	close(unblock)
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.Equal(t, int32(1), calls.Load())
	byStatus := map[models.JobStatus]int{}
	for _, id := range ids {
		job := h.status(t, id)
		byStatus[job.Status]++
		if job.Status == models.JobReady {
			assert.False(t, job.Started.Valid, "job %d never ran", id)
		}
	}
	assert.Equal(t, map[models.JobStatus]int{models.JobCompleted: 1, models.JobReady: 2}, byStatus)
}

func TestDrainReleasesQueuedJobs(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	ctx := context.Background()
	require.NoError(t, h.sched.Register(ctx))
	for range 2 {
		_, err := h.sched.Schedule(ctx, logRequest(start))
		require.NoError(t, err)
	}
	claimed, err := h.sched.claimBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	queue := make(chan domain.JobQueueItem, len(claimed))
	for _, job := range claimed {
		h.sched.inflight.Add(1)
		queue <- job
	}
	h.sched.drain(ctx, queue)

	assert.Zero(t, h.sched.inflight.Load())
	for _, job := range claimed {
		got := h.status(t, job.ID)
		assert.Equal(t, models.JobReady, got.Status)
		assert.False(t, got.Started.Valid)
		assert.False(t, got.ExecutorID.Valid)

		events, err := h.events.FindAllByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, EventReleased, events[0].Type, "newest event first")
	}

	ran, err := h.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ran, "released jobs are claimable again")
}

func TestPollRequiresStart(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	_, err := h.sched.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestMaintenance(t *testing.T) {
	h := newHarness(t, models.RetryConfig{})
	_, err := NewMaintenance(h.sched, "not a schedule")
	assert.Error(t, err)

	m, err := NewMaintenance(h.sched, "@daily")
	require.NoError(t, err)

	ctx := context.Background()
	job, err := h.sched.Schedule(ctx, logRequest(start))
	require.NoError(t, err)
	_, err = h.sched.RunOnce(ctx)
	require.NoError(t, err)

	m.removeCompleted()
	_, err = h.jobs.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOptionsFromSettingsSeparatesRetryLimits(t *testing.T) {
	config.Reset()
	t.Setenv(config.SCHEDULER_RETRY_SCALE, "4")
	t.Setenv(config.SCHEDULER_RETRY_MAX_COUNT, "12")
	t.Setenv(config.SCHEDULER_RETRY_GIVE_UP, "true")

	opts := OptionsFromSettings()
	assert.Equal(t, 4, opts.Retry.RetryScale)
	assert.Equal(t, 12, opts.Retry.MaxRetryCount)
	assert.True(t, opts.Retry.GiveUp)
	assert.False(t, opts.Retry.Exhausted(4), "reaching the scale does not give up")
	assert.True(t, opts.Retry.Exhausted(12))
}
