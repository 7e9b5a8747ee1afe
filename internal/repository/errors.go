package repository

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned by every single-row lookup that matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrStaleVersion means the row's version moved on since it was read.
	ErrStaleVersion = errors.New("stale version")
	// ErrNotLockHolder means a checkin came from someone other than the lock holder.
	ErrNotLockHolder = errors.New("not the lock holder")
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insert runs an INSERT and returns the new id, using RETURNING where the
// dialect has it and LastInsertId otherwise.
func insert(ctx context.Context, q querier, d Dialect, query string, args ...any) (int64, error) {
	if d.supportsReturning() {
		var id int64
		err := q.QueryRowContext(ctx, d.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func exec(ctx context.Context, q querier, d Dialect, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullInt64(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
