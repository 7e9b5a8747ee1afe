package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// JobQueueRepository persists job queue items and the parameters they own.
// Every status change is a compare-and-set on the current status.
type JobQueueRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewJobQueueRepository(db *sql.DB, d Dialect, clock core.Clock) *JobQueueRepository {
	return &JobQueueRepository{db: db, d: d, clock: clock}
}

const jobColumns = ` id, name, type_class, type_class_id, plugin_action, plugin_configuration_id, status,
		execution_time, added, started, finished, retry_count, last_error, executor_id `

// Save inserts the job and its parameters. Added defaults to now and status
// to WAITING.
func (r *JobQueueRepository) Save(ctx context.Context, job *domain.JobQueueItem) (int64, error) {
	if job.Added.IsZero() {
		job.Added = r.clock.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.JobWaiting
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, r.d, `
			INSERT INTO job_queue (name, type_class, type_class_id, plugin_action, plugin_configuration_id, status,
				execution_time, added, started, finished, retry_count, last_error, executor_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.Name, job.TypeClass, job.TypeClassID, job.PluginAction, nullInt64(job.PluginConfigurationID), string(job.Status),
			r.d.formatTime(job.ExecutionTime), r.d.formatTime(job.Added), r.d.formatNullTime(job.Started),
			r.d.formatNullTime(job.Finished), job.RetryCount, job.LastError, nullInt64(job.ExecutorID))
		if err != nil {
			return err
		}
		job.ID = id
		for i := range job.Parameters {
			p := &job.Parameters[i]
			p.JobQueueID = id
			p.ID, err = insert(ctx, tx, r.d, `
				INSERT INTO job_queue_parameters (job_queue_id, sort_order, param_name, param_value) VALUES (?, ?, ?, ?)`,
				id, i, p.Name, p.Value)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return job.ID, nil
}

func (r *JobQueueRepository) FindByID(ctx context.Context, id int64) (*domain.JobQueueItem, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, r.d.rebind(`SELECT`+jobColumns+`FROM job_queue WHERE id = ?`), id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.loadParameters(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// PromoteMatured flips WAITING and FAILED items whose execution time is not
// after now to READY.
func (r *JobQueueRepository) PromoteMatured(ctx context.Context, now time.Time) (int64, error) {
	return exec(ctx, r.db, r.d, `
		UPDATE job_queue SET status = ?
		WHERE status IN (?, ?) AND `+r.d.notAfter("execution_time"),
		string(models.JobReady), string(models.JobWaiting), string(models.JobFailed), r.d.formatTime(now))
}

// FindReady returns up to limit READY items, earliest execution time first.
func (r *JobQueueRepository) FindReady(ctx context.Context, limit int) ([]domain.JobQueueItem, error) {
	return r.findMany(ctx, `SELECT`+jobColumns+`FROM job_queue WHERE status = ? ORDER BY execution_time, id LIMIT ?`,
		string(models.JobReady), limit)
}

// FindByStatus lists items, newest first. An empty status lists everything.
func (r *JobQueueRepository) FindByStatus(ctx context.Context, status models.JobStatus, limit int) ([]domain.JobQueueItem, error) {
	if status == "" {
		return r.findMany(ctx, `SELECT`+jobColumns+`FROM job_queue ORDER BY id DESC LIMIT ?`, limit)
	}
	return r.findMany(ctx, `SELECT`+jobColumns+`FROM job_queue WHERE status = ? ORDER BY id DESC LIMIT ?`, string(status), limit)
}

// Claim moves a READY item to EXECUTION for executorID. It reports false when
// the item was no longer READY, for example because another worker got it.
func (r *JobQueueRepository) Claim(ctx context.Context, id, executorID int64, started time.Time) (bool, error) {
	n, err := exec(ctx, r.db, r.d, `
		UPDATE job_queue SET status = ?, started = ?, finished = NULL, executor_id = ?
		WHERE id = ? AND status = ?`,
		string(models.JobExecution), r.d.formatTime(started), executorID, id, string(models.JobReady))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *JobQueueRepository) MarkCompleted(ctx context.Context, id int64, finished time.Time) error {
	return r.finish(ctx, `
		UPDATE job_queue SET status = ?, finished = ?, last_error = NULL
		WHERE id = ? AND status = ?`,
		string(models.JobCompleted), r.d.formatTime(finished), id, string(models.JobExecution))
}

// MarkFailed records a transient failure and reschedules the item for next.
func (r *JobQueueRepository) MarkFailed(ctx context.Context, id int64, finished, next time.Time, reason string) error {
	return r.finish(ctx, `
		UPDATE job_queue SET status = ?, finished = ?, execution_time = ?, retry_count = retry_count + 1, last_error = ?, executor_id = NULL
		WHERE id = ? AND status = ?`,
		string(models.JobFailed), r.d.formatTime(finished), r.d.formatTime(next), reason, id, string(models.JobExecution))
}

// MarkFailedCompleted records a permanent failure. The item is terminal.
func (r *JobQueueRepository) MarkFailedCompleted(ctx context.Context, id int64, finished time.Time, reason string) error {
	return r.finish(ctx, `
		UPDATE job_queue SET status = ?, finished = ?, last_error = ?
		WHERE id = ? AND status = ?`,
		string(models.JobFailedCompleted), r.d.formatTime(finished), reason, id, string(models.JobExecution))
}

func (r *JobQueueRepository) finish(ctx context.Context, query string, args ...any) error {
	n, err := exec(ctx, r.db, r.d, query, args...)
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleVersion
	}
	return nil
}

// FindStuck returns EXECUTION items started before startedBefore whose
// executor has not been active since activeSince.
func (r *JobQueueRepository) FindStuck(ctx context.Context, startedBefore, activeSince time.Time, limit int) ([]domain.JobQueueItem, error) {
	return r.findMany(ctx, `SELECT`+jobColumns+`FROM job_queue
		WHERE status = ? AND `+r.d.before("started")+`
		  AND (executor_id IS NULL OR executor_id NOT IN (
		      SELECT id FROM executors WHERE `+r.d.after("last_active")+` ))
		ORDER BY started LIMIT ?`,
		string(models.JobExecution), r.d.formatTime(startedBefore), r.d.formatTime(activeSince), limit)
}

// ResetStuck puts an EXECUTION item back to FAILED, due at next.
func (r *JobQueueRepository) ResetStuck(ctx context.Context, id int64, next time.Time) (bool, error) {
	n, err := exec(ctx, r.db, r.d, `
		UPDATE job_queue SET status = ?, execution_time = ?, executor_id = NULL
		WHERE id = ? AND status = ?`,
		string(models.JobFailed), r.d.formatTime(next), id, string(models.JobExecution))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release returns a claimed job that never started running to READY and
// clears its claim.
func (r *JobQueueRepository) Release(ctx context.Context, id int64) (bool, error) {
	n, err := exec(ctx, r.db, r.d, `
		UPDATE job_queue SET status = ?, started = NULL, executor_id = NULL
		WHERE id = ? AND status = ?`,
		string(models.JobReady), id, string(models.JobExecution))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RemoveCompleted deletes every COMPLETED item with its parameters and events.
func (r *JobQueueRepository) RemoveCompleted(ctx context.Context) (int64, error) {
	var removed int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		completed := string(models.JobCompleted)
		for _, child := range []string{"job_queue_parameters", "job_queue_events"} {
			if _, err := exec(ctx, tx, r.d, `DELETE FROM `+child+` WHERE job_queue_id IN (SELECT id FROM job_queue WHERE status = ?)`, completed); err != nil {
				return err
			}
		}
		n, err := exec(ctx, tx, r.d, `DELETE FROM job_queue WHERE status = ?`, completed)
		removed = n
		return err
	})
	return removed, err
}

// CountByStatus returns the number of items per status.
func (r *JobQueueRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.JobStatus]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[models.JobStatus(s)] = n
	}
	return out, rows.Err()
}

func (r *JobQueueRepository) findMany(ctx context.Context, query string, args ...any) ([]domain.JobQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	var jobs []domain.JobQueueItem
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range jobs {
		if err := r.loadParameters(ctx, &jobs[i]); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*domain.JobQueueItem, error) {
	var j domain.JobQueueItem
	var status string
	err := row.Scan(&j.ID, &j.Name, &j.TypeClass, &j.TypeClassID, &j.PluginAction, &j.PluginConfigurationID, &status,
		&j.ExecutionTime, &j.Added, &j.Started, &j.Finished, &j.RetryCount, &j.LastError, &j.ExecutorID)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(strings.TrimSpace(status))
	j.ExecutionTime = j.ExecutionTime.UTC()
	j.Added = j.Added.UTC()
	if j.Started.Valid {
		j.Started.Time = j.Started.Time.UTC()
	}
	if j.Finished.Valid {
		j.Finished.Time = j.Finished.Time.UTC()
	}
	return &j, nil
}

func (r *JobQueueRepository) loadParameters(ctx context.Context, job *domain.JobQueueItem) error {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT id, job_queue_id, param_name, param_value
		FROM job_queue_parameters WHERE job_queue_id = ? ORDER BY sort_order`), job.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	job.Parameters = nil
	for rows.Next() {
		var p domain.JobQueueParameter
		if err := rows.Scan(&p.ID, &p.JobQueueID, &p.Name, &p.Value); err != nil {
			return err
		}
		job.Parameters = append(job.Parameters, p)
	}
	return rows.Err()
}
