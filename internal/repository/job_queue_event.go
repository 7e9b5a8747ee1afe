package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// JobQueueEventRepository stores the audit trail of scheduler decisions.
type JobQueueEventRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewJobQueueEventRepository(db *sql.DB, d Dialect, clock core.Clock) *JobQueueEventRepository {
	return &JobQueueEventRepository{db: db, d: d, clock: clock}
}

// Save inserts a new event and returns its ID. DateTime defaults to now.
func (r *JobQueueEventRepository) Save(ctx context.Context, e *domain.JobQueueEvent) (int64, error) {
	if e.DateTime.IsZero() {
		e.DateTime = r.clock.Now().UTC()
	}
	id, err := insert(ctx, r.db, r.d, `
		INSERT INTO job_queue_events (job_queue_id, executor_id, type, text, date_time) VALUES (?, ?, ?, ?, ?)`,
		e.JobQueueID, e.ExecutorID, e.Type, e.Text, r.d.formatTime(e.DateTime))
	if err != nil {
		slog.Error("Failed to save job queue event", "error", err, "job_id", e.JobQueueID, "type", e.Type)
		return 0, err
	}
	e.ID = id
	return id, nil
}

// FindAllByJobID returns the events of a job, newest first.
func (r *JobQueueEventRepository) FindAllByJobID(ctx context.Context, jobID int64) ([]domain.JobQueueEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT id, job_queue_id, executor_id, type, text, date_time
		FROM job_queue_events
		WHERE job_queue_id = ?
		ORDER BY id DESC`), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.JobQueueEvent
	for rows.Next() {
		var e domain.JobQueueEvent
		if err := rows.Scan(&e.ID, &e.JobQueueID, &e.ExecutorID, &e.Type, &e.Text, &e.DateTime); err != nil {
			return nil, err
		}
		e.DateTime = e.DateTime.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
