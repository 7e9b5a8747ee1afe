package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// NewsItemRepository persists news items together with the history and actor
// rows they own. Every write bumps version and is guarded by it.
type NewsItemRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewNewsItemRepository(db *sql.DB, d Dialect, clock core.Clock) *NewsItemRepository {
	return &NewsItemRepository{db: db, d: d, clock: clock}
}

const newsItemColumns = `n.id, n.title, n.story, n.target_word_count, n.actual_word_count, n.checked_out, n.checked_out_by,
		n.assignment_id, n.outlet_id, n.edition_id, n.precalculated_current_actor, n.created, n.updated, n.version,
		s.id, s.workflow_id, s.name, s.description, s.actor_role, s.permission, s.show_in_inbox, s.treat_as_submitted, s.display_order`

const newsItemFrom = ` FROM news_items n JOIN workflow_states s ON s.id = n.current_state_id `

// Create inserts the item at version 1 along with any actors and history it
// already carries.
func (r *NewsItemRepository) Create(ctx context.Context, item *domain.NewsItem) (int64, error) {
	now := r.clock.Now().UTC()
	if item.Created.IsZero() {
		item.Created = now
	}
	if item.Updated.IsZero() {
		item.Updated = item.Created
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, r.d, `
			INSERT INTO news_items (current_state_id, title, story, target_word_count, actual_word_count, checked_out, checked_out_by,
				assignment_id, outlet_id, edition_id, precalculated_current_actor, created, updated, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			item.CurrentState.ID, item.Title, item.Story, item.TargetWordCount, item.ActualWordCount,
			r.d.formatNullTime(item.CheckedOut), nullInt64(item.CheckedOutBy),
			nullInt64(item.AssignmentID), nullInt64(item.OutletID), nullInt64(item.EditionID),
			item.PrecalculatedCurrentActor, r.d.formatTime(item.Created), r.d.formatTime(item.Updated))
		if err != nil {
			return err
		}
		item.ID = id
		for i := range item.Actors {
			if err := r.insertActor(ctx, tx, id, &item.Actors[i]); err != nil {
				return err
			}
		}
		for i := range item.History {
			if err := r.insertTransition(ctx, tx, id, &item.History[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	item.Version = 1
	return item.ID, nil
}

// ApplyTransition stores a new current state and appends t to the history in
// one transaction. item must carry the version it was read at; the state
// change is rejected with ErrStaleVersion when the row has moved on.
func (r *NewsItemRepository) ApplyTransition(ctx context.Context, item *domain.NewsItem, t *domain.WorkflowStateTransition) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		n, err := exec(ctx, tx, r.d, `
			UPDATE news_items
			SET current_state_id = ?, precalculated_current_actor = ?, updated = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			item.CurrentState.ID, item.PrecalculatedCurrentActor, r.d.formatTime(item.Updated), item.ID, item.Version)
		if err != nil {
			return err
		}
		if n != 1 {
			return r.missingOrStale(ctx, tx, item.ID)
		}
		return r.insertTransition(ctx, tx, item.ID, t)
	})
	if err != nil {
		return err
	}
	item.Version++
	return nil
}

// Update writes the editable fields of the item. Lock fields are left to
// TryCheckout and Checkin.
func (r *NewsItemRepository) Update(ctx context.Context, item *domain.NewsItem) error {
	updated := r.clock.Now().UTC()
	if err := r.updateFields(ctx, r.db, item, updated); err != nil {
		return err
	}
	item.Updated = updated
	item.Version++
	return nil
}

// AddActorAndUpdate binds actor to the item and writes the item's editable
// fields in one transaction. A stale version leaves both untouched.
func (r *NewsItemRepository) AddActorAndUpdate(ctx context.Context, item *domain.NewsItem, actor *domain.ContentItemActor) error {
	updated := r.clock.Now().UTC()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.updateFields(ctx, tx, item, updated); err != nil {
			return err
		}
		return r.insertActor(ctx, tx, item.ID, actor)
	})
	if err != nil {
		return err
	}
	item.Updated = updated
	item.Version++
	return nil
}

func (r *NewsItemRepository) updateFields(ctx context.Context, q querier, item *domain.NewsItem, updated time.Time) error {
	n, err := exec(ctx, q, r.d, `
		UPDATE news_items
		SET title = ?, story = ?, target_word_count = ?, actual_word_count = ?, assignment_id = ?, outlet_id = ?,
			edition_id = ?, precalculated_current_actor = ?, updated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		item.Title, item.Story, item.TargetWordCount, item.ActualWordCount, nullInt64(item.AssignmentID),
		nullInt64(item.OutletID), nullInt64(item.EditionID), item.PrecalculatedCurrentActor, r.d.formatTime(updated),
		item.ID, item.Version)
	if err != nil {
		return err
	}
	if n != 1 {
		return r.missingOrStale(ctx, q, item.ID)
	}
	return nil
}

// TryCheckout sets the lock when it is free or already held by userID. It
// reports false when somebody else holds it.
func (r *NewsItemRepository) TryCheckout(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	n, err := exec(ctx, r.db, r.d, `
		UPDATE news_items
		SET checked_out = ?, checked_out_by = ?, version = version + 1
		WHERE id = ? AND (checked_out_by IS NULL OR checked_out_by = ?)`,
		r.d.formatTime(at), userID, id, userID)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.version(ctx, r.db, id); err != nil {
		return false, err
	}
	return false, nil
}

// Checkin writes the editable fields and clears the lock in one statement.
// It only matches when userID holds the lock and the version is unchanged;
// otherwise ErrNotLockHolder or ErrStaleVersion is returned and nothing is
// written.
func (r *NewsItemRepository) Checkin(ctx context.Context, item *domain.NewsItem, userID int64) error {
	updated := r.clock.Now().UTC()
	n, err := exec(ctx, r.db, r.d, `
		UPDATE news_items
		SET title = ?, story = ?, target_word_count = ?, actual_word_count = ?, assignment_id = ?, outlet_id = ?,
			edition_id = ?, precalculated_current_actor = ?, updated = ?, checked_out = NULL, checked_out_by = NULL,
			version = version + 1
		WHERE id = ? AND checked_out_by = ? AND version = ?`,
		item.Title, item.Story, item.TargetWordCount, item.ActualWordCount, nullInt64(item.AssignmentID),
		nullInt64(item.OutletID), nullInt64(item.EditionID), item.PrecalculatedCurrentActor, r.d.formatTime(updated),
		item.ID, userID, item.Version)
	if err != nil {
		return err
	}
	if n == 1 {
		item.Updated = updated
		item.CheckedOut = sql.NullTime{}
		item.CheckedOutBy = sql.NullInt64{}
		item.Version++
		return nil
	}

	var holder sql.NullInt64
	err = r.db.QueryRowContext(ctx, r.d.rebind(`SELECT checked_out_by FROM news_items WHERE id = ?`), item.ID).Scan(&holder)
	if err != nil {
		return notFound(err)
	}
	if !holder.Valid || holder.Int64 != userID {
		return ErrNotLockHolder
	}
	return ErrStaleVersion
}

// RevokeLocksByUser clears every lock held by userID and returns how many
// items were unlocked.
func (r *NewsItemRepository) RevokeLocksByUser(ctx context.Context, userID int64) (int64, error) {
	return exec(ctx, r.db, r.d, `
		UPDATE news_items SET checked_out = NULL, checked_out_by = NULL, version = version + 1
		WHERE checked_out_by = ?`, userID)
}

func (r *NewsItemRepository) RevokeAllLocks(ctx context.Context) (int64, error) {
	return exec(ctx, r.db, r.d, `
		UPDATE news_items SET checked_out = NULL, checked_out_by = NULL, version = version + 1
		WHERE checked_out_by IS NOT NULL`)
}

// Delete removes the item with its history and actors.
func (r *NewsItemRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := exec(ctx, tx, r.d, `DELETE FROM content_item_transitions WHERE content_item_id = ?`, id); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, r.d, `DELETE FROM content_item_actors WHERE content_item_id = ?`, id); err != nil {
			return err
		}
		n, err := exec(ctx, tx, r.d, `DELETE FROM news_items WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *NewsItemRepository) FindByID(ctx context.Context, id int64) (*domain.NewsItem, error) {
	item, err := scanNewsItem(r.db.QueryRowContext(ctx, r.d.rebind(`SELECT `+newsItemColumns+newsItemFrom+`WHERE n.id = ?`), id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.loadChildren(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// FindByStateAndOutlet returns items sitting in the named state for an outlet.
func (r *NewsItemRepository) FindByStateAndOutlet(ctx context.Context, stateName string, outletID int64) ([]domain.NewsItem, error) {
	return r.findMany(ctx, `SELECT `+newsItemColumns+newsItemFrom+`WHERE s.name = ? AND n.outlet_id = ? ORDER BY n.id`, stateName, outletID)
}

func (r *NewsItemRepository) FindByEdition(ctx context.Context, editionID int64) ([]domain.NewsItem, error) {
	return r.findMany(ctx, `SELECT `+newsItemColumns+newsItemFrom+`WHERE n.edition_id = ? ORDER BY n.id`, editionID)
}

// FindCheckedOutBy lists the items a user currently holds locks on.
func (r *NewsItemRepository) FindCheckedOutBy(ctx context.Context, userID int64) ([]domain.NewsItem, error) {
	return r.findMany(ctx, `SELECT `+newsItemColumns+newsItemFrom+`WHERE n.checked_out_by = ? ORDER BY n.id`, userID)
}

func (r *NewsItemRepository) findMany(ctx context.Context, query string, args ...any) ([]domain.NewsItem, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	var items []domain.NewsItem
	for rows.Next() {
		item, err := scanNewsItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, *item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if err := r.loadChildren(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func scanNewsItem(row rowScanner) (*domain.NewsItem, error) {
	var n domain.NewsItem
	var permission string
	s := &n.CurrentState
	err := row.Scan(&n.ID, &n.Title, &n.Story, &n.TargetWordCount, &n.ActualWordCount, &n.CheckedOut, &n.CheckedOutBy,
		&n.AssignmentID, &n.OutletID, &n.EditionID, &n.PrecalculatedCurrentActor, &n.Created, &n.Updated, &n.Version,
		&s.ID, &s.WorkflowID, &s.Name, &s.Description, &s.ActorRole, &permission, &s.ShowInInbox, &s.TreatAsSubmitted, &s.DisplayOrder)
	if err != nil {
		return nil, err
	}
	s.Permission = models.Permission(permission)
	n.Created = n.Created.UTC()
	n.Updated = n.Updated.UTC()
	if n.CheckedOut.Valid {
		n.CheckedOut.Time = n.CheckedOut.Time.UTC()
	}
	return &n, nil
}

func (r *NewsItemRepository) loadChildren(ctx context.Context, item *domain.NewsItem) error {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT t.id, t.content_item_id, t.state_id, s.name, t.user_id, COALESCE(u.username, ''), t.created, t.comment, t.submitted
		FROM content_item_transitions t
		JOIN workflow_states s ON s.id = t.state_id
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.content_item_id = ?
		ORDER BY t.id`), item.ID)
	if err != nil {
		return err
	}
	item.History = nil
	for rows.Next() {
		var t domain.WorkflowStateTransition
		if err := rows.Scan(&t.ID, &t.ContentItemID, &t.StateID, &t.StateName, &t.UserID, &t.Username, &t.Timestamp, &t.Comment, &t.Submitted); err != nil {
			rows.Close()
			return err
		}
		t.Timestamp = t.Timestamp.UTC()
		item.History = append(item.History, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, r.d.rebind(`
		SELECT a.id, a.content_item_id, a.user_id, COALESCE(u.username, ''), a.role
		FROM content_item_actors a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.content_item_id = ?
		ORDER BY a.id`), item.ID)
	if err != nil {
		return err
	}
	item.Actors = nil
	for rows.Next() {
		var a domain.ContentItemActor
		if err := rows.Scan(&a.ID, &a.ContentItemID, &a.UserID, &a.Username, &a.Role); err != nil {
			rows.Close()
			return err
		}
		item.Actors = append(item.Actors, a)
	}
	rows.Close()
	return rows.Err()
}

func (r *NewsItemRepository) insertTransition(ctx context.Context, q querier, itemID int64, t *domain.WorkflowStateTransition) error {
	t.ContentItemID = itemID
	id, err := insert(ctx, q, r.d, `
		INSERT INTO content_item_transitions (content_item_id, state_id, user_id, created, comment, submitted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		itemID, t.StateID, t.UserID, r.d.formatTime(t.Timestamp), t.Comment, t.Submitted)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (r *NewsItemRepository) insertActor(ctx context.Context, q querier, itemID int64, a *domain.ContentItemActor) error {
	a.ContentItemID = itemID
	id, err := insert(ctx, q, r.d, `INSERT INTO content_item_actors (content_item_id, user_id, role) VALUES (?, ?, ?)`,
		itemID, a.UserID, a.Role)
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *NewsItemRepository) version(ctx context.Context, q querier, id int64) (int64, error) {
	var v int64
	if err := q.QueryRowContext(ctx, r.d.rebind(`SELECT version FROM news_items WHERE id = ?`), id).Scan(&v); err != nil {
		return 0, notFound(err)
	}
	return v, nil
}

// missingOrStale explains why a version guarded update matched no row.
func (r *NewsItemRepository) missingOrStale(ctx context.Context, q querier, id int64) error {
	if _, err := r.version(ctx, q, id); err != nil {
		return err
	}
	return ErrStaleVersion
}
