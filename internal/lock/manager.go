package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/internal/workflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

var (
	ErrNotLockHolder = repository.ErrNotLockHolder
	ErrStaleVersion  = repository.ErrStaleVersion
)

// LockingError is returned by Checkin when the caller may not write the item.
// It unwraps to ErrNotLockHolder or ErrStaleVersion.
type LockingError struct {
	ItemID int64
	UserID int64
	Reason error
}

func (e *LockingError) Error() string {
	return fmt.Sprintf("checkin of news item %d by user %d: %v", e.ItemID, e.UserID, e.Reason)
}

func (e *LockingError) Unwrap() error { return e.Reason }

// Store is the persistence the lock manager needs. The repository
// implementation does the compare-and-set in SQL.
type Store interface {
	FindByID(ctx context.Context, id int64) (*domain.NewsItem, error)
	TryCheckout(ctx context.Context, id, userID int64, at time.Time) (bool, error)
	Checkin(ctx context.Context, item *domain.NewsItem, userID int64) error
	RevokeLocksByUser(ctx context.Context, userID int64) (int64, error)
	RevokeAllLocks(ctx context.Context) (int64, error)
}

type WorkflowFinder interface {
	FindByStateID(ctx context.Context, stateID int64) (*domain.Workflow, error)
}

// CheckoutResult is what an editor gets back when opening an item.
type CheckoutResult struct {
	Item *domain.NewsItem
	// IsLocked is set when somebody else holds the lock. The caller must not
	// allow edits.
	IsLocked bool
	// IsReadOnly is set when the user's roles may not act on the item's
	// current state. No lock is taken.
	IsReadOnly bool
}

type Manager struct {
	store     Store
	workflows WorkflowFinder
	clock     core.Clock
}

func NewManager(store Store, workflows WorkflowFinder, clock core.Clock) *Manager {
	return &Manager{store: store, workflows: workflows, clock: clock}
}

// Checkout opens an item for user. A lock held by someone else is reported
// through IsLocked, not as an error.
func (m *Manager) Checkout(ctx context.Context, itemID int64, user *domain.UserAccount) (*CheckoutResult, error) {
	item, err := m.store.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	lockedByOther := item.IsLocked() && !item.IsLockedBy(user.ID)

	readOnly, err := m.readOnly(ctx, item, user)
	if err != nil {
		return nil, err
	}
	if readOnly || lockedByOther {
		slog.Debug("Checkout refused", "item_id", itemID, "user", user.Username, "read_only", readOnly, "locked", lockedByOther)
		return &CheckoutResult{Item: item, IsLocked: lockedByOther, IsReadOnly: readOnly}, nil
	}

	ok, err := m.store.TryCheckout(ctx, itemID, user.ID, m.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	item, err = m.store.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Debug("Checkout lost the race", "item_id", itemID, "user", user.Username)
		return &CheckoutResult{Item: item, IsLocked: true}, nil
	}
	return &CheckoutResult{Item: item}, nil
}

// Checkin writes the item's fields and releases the lock. On failure item is
// left exactly as it was passed in.
func (m *Manager) Checkin(ctx context.Context, item *domain.NewsItem, user *domain.UserAccount) error {
	next := item.Clone()
	next.UpdateWordCount()
	next.PrecalculatedCurrentActor = workflow.CurrentActor(&next.ContentItem)
	if err := m.store.Checkin(ctx, next, user.ID); err != nil {
		if errors.Is(err, ErrNotLockHolder) || errors.Is(err, ErrStaleVersion) {
			return &LockingError{ItemID: item.ID, UserID: user.ID, Reason: err}
		}
		return err
	}
	*item = *next
	return nil
}

// RevokeLocks releases every lock user holds. Revoking nothing is not an error.
func (m *Manager) RevokeLocks(ctx context.Context, user *domain.UserAccount) (int64, error) {
	n, err := m.store.RevokeLocksByUser(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	slog.Info("Revoked locks", "user", user.Username, "count", n)
	return n, nil
}

func (m *Manager) RevokeAllLocks(ctx context.Context) (int64, error) {
	n, err := m.store.RevokeAllLocks(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("Revoked all locks", "count", n)
	return n, nil
}

func (m *Manager) readOnly(ctx context.Context, item *domain.NewsItem, user *domain.UserAccount) (bool, error) {
	wf, err := m.workflows.FindByStateID(ctx, item.CurrentState.ID)
	if err != nil {
		return false, err
	}
	machine, err := workflow.NewMachine(wf, m.clock)
	if err != nil {
		return false, err
	}
	return !machine.CanAct(&item.ContentItem, user), nil
}
