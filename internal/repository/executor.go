package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// ExecutorRepository provides persistence for executors table.
type ExecutorRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewExecutorRepository(db *sql.DB, d Dialect, clock core.Clock) *ExecutorRepository {
	return &ExecutorRepository{db: db, d: d, clock: clock}
}

// Save inserts a new executor row and returns its ID. Started defaults to now.
func (r *ExecutorRepository) Save(ctx context.Context, e *domain.Executor) (int64, error) {
	if e.Started.IsZero() {
		e.Started = r.clock.Now().UTC()
	}
	if e.LastActive.IsZero() {
		e.LastActive = e.Started
	}
	id, err := insert(ctx, r.db, r.d,
		`INSERT INTO executors (name, started, last_active) VALUES (?, ?, ?)`,
		e.Name, r.d.formatTime(e.Started), r.d.formatTime(e.LastActive))
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// UpdateLastActive sets last_active for the executor id to the provided timestamp.
func (r *ExecutorRepository) UpdateLastActive(ctx context.Context, id int64, ts time.Time) error {
	_, err := exec(ctx, r.db, r.d, `UPDATE executors SET last_active = ? WHERE id = ?`, r.d.formatTime(ts), id)
	return err
}

func (r *ExecutorRepository) FindByLastActive(ctx context.Context, limit int) ([]domain.Executor, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT id, name, started, last_active
		FROM executors
		ORDER BY last_active DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executors []domain.Executor
	for rows.Next() {
		var e domain.Executor
		if err := rows.Scan(&e.ID, &e.Name, &e.Started, &e.LastActive); err != nil {
			return nil, err
		}
		e.Started = e.Started.UTC()
		e.LastActive = e.LastActive.UTC()
		executors = append(executors, e)
	}
	return executors, rows.Err()
}
