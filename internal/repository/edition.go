package repository

import (
	"context"
	"database/sql"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

type EditionRepository struct {
	db *sql.DB
	d  Dialect
}

func NewEditionRepository(db *sql.DB, d Dialect) *EditionRepository {
	return &EditionRepository{db: db, d: d}
}

func (r *EditionRepository) Save(ctx context.Context, e *domain.Edition) (int64, error) {
	id, err := insert(ctx, r.db, r.d, `INSERT INTO editions (outlet_id, name, publication_date, is_open) VALUES (?, ?, ?, ?)`,
		e.OutletID, e.Name, r.d.formatTime(e.PublicationDate), e.Open)
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (r *EditionRepository) FindByID(ctx context.Context, id int64) (*domain.Edition, error) {
	var e domain.Edition
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT id, outlet_id, name, publication_date, is_open FROM editions WHERE id = ?`), id).
		Scan(&e.ID, &e.OutletID, &e.Name, &e.PublicationDate, &e.Open)
	if err != nil {
		return nil, notFound(err)
	}
	e.PublicationDate = e.PublicationDate.UTC()
	return &e, nil
}
