package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// NewswireRepository stores newswire services and the items decoded from them.
type NewswireRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewNewswireRepository(db *sql.DB, d Dialect, clock core.Clock) *NewswireRepository {
	return &NewswireRepository{db: db, d: d, clock: clock}
}

func (r *NewswireRepository) SaveService(ctx context.Context, s *domain.NewswireService) (int64, error) {
	id, err := insert(ctx, r.db, r.d, `
		INSERT INTO newswire_services (name, plugin_configuration_id, active, last_fetch) VALUES (?, ?, ?, ?)`,
		s.Name, nullInt64(s.PluginConfigurationID), s.Active, r.d.formatNullTime(s.LastFetch))
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

func (r *NewswireRepository) FindServiceByID(ctx context.Context, id int64) (*domain.NewswireService, error) {
	var s domain.NewswireService
	err := r.db.QueryRowContext(ctx, r.d.rebind(`
		SELECT id, name, plugin_configuration_id, active, last_fetch FROM newswire_services WHERE id = ?`), id).
		Scan(&s.ID, &s.Name, &s.PluginConfigurationID, &s.Active, &s.LastFetch)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// TouchService records when a service was last fetched.
func (r *NewswireRepository) TouchService(ctx context.Context, id int64, at time.Time) error {
	n, err := exec(ctx, r.db, r.d, `UPDATE newswire_services SET last_fetch = ? WHERE id = ?`, r.d.formatTime(at), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NewswireRepository) SaveItem(ctx context.Context, item *domain.NewswireItem) (int64, error) {
	if item.Created.IsZero() {
		item.Created = r.clock.Now().UTC()
	}
	id, err := insert(ctx, r.db, r.d, `
		INSERT INTO newswire_items (newswire_service_id, external_id, title, summary, content, published, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.NewswireServiceID, item.ExternalID, item.Title, item.Summary, item.Content,
		r.d.formatNullTime(item.Published), r.d.formatTime(item.Created))
	if err != nil {
		return 0, err
	}
	item.ID = id
	return id, nil
}

// FindItemsByExternalID returns every stored item with the external id, oldest first.
func (r *NewswireRepository) FindItemsByExternalID(ctx context.Context, externalID string) ([]domain.NewswireItem, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT id, newswire_service_id, external_id, title, summary, content, published, created
		FROM newswire_items WHERE external_id = ? ORDER BY id`), externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.NewswireItem
	for rows.Next() {
		var it domain.NewswireItem
		if err := rows.Scan(&it.ID, &it.NewswireServiceID, &it.ExternalID, &it.Title, &it.Summary, &it.Content, &it.Published, &it.Created); err != nil {
			return nil, err
		}
		it.Created = it.Created.UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}
