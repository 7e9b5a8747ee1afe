package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

func TestNewsItemCreateAndLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	item := f.createItem(t, wf, anna)

	loaded, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, "Draft", loaded.CurrentState.Name)
	assert.Equal(t, wf.ID, loaded.CurrentState.WorkflowID)
	require.Len(t, loaded.Actors, 1)
	assert.Equal(t, "anna", loaded.Actors[0].Username)
	assert.False(t, loaded.IsLocked())
	assert.Equal(t, epoch, loaded.Created)

	_, err = f.items.FindByID(ctx, item.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyTransitionIsVersionGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	item := f.createItem(t, wf, anna)
	review, _ := wf.StateByName("In Review")

	first, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	second, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)

	first.CurrentState = *review
	first.Updated = epoch.Add(time.Minute)
	tr := &domain.WorkflowStateTransition{StateID: review.ID, UserID: anna.ID, Timestamp: first.Updated, Submitted: true}
	require.NoError(t, f.items.ApplyTransition(ctx, first, tr))
	assert.Equal(t, int64(2), first.Version)
	assert.NotZero(t, tr.ID)

	second.CurrentState = *review
	err = f.items.ApplyTransition(ctx, second, &domain.WorkflowStateTransition{StateID: review.ID, UserID: anna.ID, Timestamp: epoch})
	assert.ErrorIs(t, err, ErrStaleVersion)

	loaded, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, loaded.History, 1, "the stale writer must not append history")
	assert.Equal(t, "In Review", loaded.History[0].StateName)
	assert.Equal(t, "anna", loaded.History[0].Username)
	assert.True(t, loaded.History[0].Submitted)
	assert.Equal(t, review.ID, loaded.CurrentState.ID)
}

func TestCheckoutIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	item := f.createItem(t, wf, anna)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.items.TryCheckout(ctx, item.ID, int64(100+i), epoch)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	won := 0
	for _, ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestCheckinRequiresHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	ben := f.saveUser(t, "ben", "Journalist")
	item := f.createItem(t, wf, anna)

	ok, err := f.items.TryCheckout(ctx, item.ID, anna.ID, epoch)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	held.Story = "Ben rewrote this."
	assert.ErrorIs(t, f.items.Checkin(ctx, held, ben.ID), ErrNotLockHolder)

	after, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, after.IsLockedBy(anna.ID))
	assert.Equal(t, "The harbour reopened on Monday.", after.Story)

	stale := *after
	stale.Version--
	assert.ErrorIs(t, f.items.Checkin(ctx, &stale, anna.ID), ErrStaleVersion)

	after.Story = "The harbour reopened on Monday morning."
	require.NoError(t, f.items.Checkin(ctx, after, anna.ID))
	assert.False(t, after.IsLocked())

	final, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, final.IsLocked())
	assert.Equal(t, "The harbour reopened on Monday morning.", final.Story)
	assert.Equal(t, after.Version, final.Version)
}

func TestRevokeLocksIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	a := f.createItem(t, wf, anna)
	b := f.createItem(t, wf, anna)

	for _, id := range []int64{a.ID, b.ID} {
		ok, err := f.items.TryCheckout(ctx, id, anna.ID, epoch)
		require.NoError(t, err)
		require.True(t, ok)
	}
	held, err := f.items.FindCheckedOutBy(ctx, anna.ID)
	require.NoError(t, err)
	assert.Len(t, held, 2)

	n, err := f.items.RevokeLocksByUser(ctx, anna.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.items.RevokeLocksByUser(ctx, anna.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.items.RevokeAllLocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteRemovesOwnedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	item := f.createItem(t, wf, anna)

	require.NoError(t, f.items.AddActorAndUpdate(ctx, item, &domain.ContentItemActor{UserID: anna.ID, Role: "Editor"}))
	require.NoError(t, f.items.Delete(ctx, item.ID))

	_, err := f.items.FindByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.items.Delete(ctx, item.ID), ErrNotFound)
	assert.ErrorIs(t, f.items.AddActorAndUpdate(ctx, item, &domain.ContentItemActor{UserID: anna.ID, Role: "Editor"}), ErrNotFound)
}

func TestAddActorAndUpdateIsVersionGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	ben := f.saveUser(t, "ben", "Journalist")
	item := f.createItem(t, wf, anna)

	stale, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	actorsBefore := len(stale.Actors)

	item.Title = "Moved on"
	require.NoError(t, f.items.Update(ctx, item))

	stale.PrecalculatedCurrentActor = "anna, ben"
	err = f.items.AddActorAndUpdate(ctx, stale, &domain.ContentItemActor{UserID: ben.ID, Role: "Journalist"})
	assert.ErrorIs(t, err, ErrStaleVersion)

	loaded, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Actors, actorsBefore, "no actor row without the update")
	assert.Equal(t, "Moved on", loaded.Title)
	assert.NotEqual(t, "anna, ben", loaded.PrecalculatedCurrentActor)

	require.NoError(t, f.items.AddActorAndUpdate(ctx, loaded, &domain.ContentItemActor{UserID: ben.ID, Role: "Journalist"}))
	reloaded, err := f.items.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Actors, actorsBefore+1)
	assert.Equal(t, loaded.Version, reloaded.Version)
}

func TestFindByStateAndOutlet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.saveWorkflow(t)
	anna := f.saveUser(t, "anna", "Journalist")
	item := f.createItem(t, wf, anna)

	item.OutletID.Int64, item.OutletID.Valid = 3, true
	require.NoError(t, f.items.Update(ctx, item))

	found, err := f.items.FindByStateAndOutlet(ctx, "Draft", 3)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, item.ID, found[0].ID)

	none, err := f.items.FindByStateAndOutlet(ctx, "Published", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}
