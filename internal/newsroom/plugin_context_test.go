package newsroom

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/internal/testsupport"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

type archiverFunc func(ctx context.Context, file io.Reader, catalogueID int64, filename string) error

func (f archiverFunc) Archive(ctx context.Context, file io.Reader, catalogueID int64, filename string) error {
	return f(ctx, file, catalogueID, filename)
}

type pctxFixture struct {
	pctx   *PluginContext
	events *repository.JobQueueEventRepository
	users  *repository.UserAccountRepository
}

func newPluginContext(t *testing.T) *pctxFixture {
	t.Helper()
	db := testsupport.OpenSQLite(t)
	clock := testsupport.NewFakeClock(deskTime)
	f := &pctxFixture{
		events: repository.NewJobQueueEventRepository(db, repository.SQLite, clock),
		users:  repository.NewUserAccountRepository(db, repository.SQLite, clock),
	}
	f.pctx = NewPluginContext(
		repository.NewNewswireRepository(db, repository.SQLite, clock),
		f.users,
		repository.NewNewsItemRepository(db, repository.SQLite, clock),
		f.events,
		clock,
	)
	return f
}

func TestPluginContextLogWritesJobEvent(t *testing.T) {
	f := newPluginContext(t)
	ctx := core.WithJobID(context.Background(), 12)

	f.pctx.Log(ctx, plugin.SeverityWarn, "republished", []plugin.Subject{{Type: "NewsItem", ID: 42}})
	f.pctx.Log(context.Background(), plugin.SeverityInfo, "no job, no event", nil)

	events, err := f.events.FindAllByJobID(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventLog, events[0].Type)
	assert.Equal(t, "WARN republished [NewsItem:42]", events[0].Text)
}

func TestPluginContextCurrentUser(t *testing.T) {
	f := newPluginContext(t)
	anna := &domain.UserAccount{Username: "anna", Roles: []string{"Editor"}}
	_, err := f.users.Save(context.Background(), anna, "pw")
	require.NoError(t, err)

	_, err = f.pctx.CurrentUserAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoCurrentUser)

	u, err := f.pctx.CurrentUserAccount(core.WithUsername(context.Background(), "anna"))
	require.NoError(t, err)
	assert.Equal(t, anna.ID, u.ID)

	editors, err := f.pctx.FindUserAccountsByRole(context.Background(), "Editor")
	require.NoError(t, err)
	assert.Len(t, editors, 1)
}

func TestPluginContextNewswireItems(t *testing.T) {
	f := newPluginContext(t)
	ctx := context.Background()
	require.NoError(t, f.pctx.CreateNewswireItem(ctx, &domain.NewswireItem{NewswireServiceID: 1, ExternalID: "wire-1.txt", Title: "Storm"}))

	items, err := f.pctx.FindNewswireItemsByExternalID(ctx, "wire-1.txt")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Storm", items[0].Title)
}

func TestPluginContextUnconfiguredCollaborators(t *testing.T) {
	f := newPluginContext(t)
	ctx := context.Background()

	err := f.pctx.Index(ctx, &domain.NewsItem{})
	assert.ErrorIs(t, err, plugin.ErrIndexing)
	assert.ErrorIs(t, err, plugin.ErrNotConfigured)

	_, err = f.pctx.Enrich(ctx, "story")
	assert.ErrorIs(t, err, plugin.ErrEnrich)

	err = f.pctx.Archive(ctx, strings.NewReader("x"), 1, "a.jpg")
	assert.ErrorIs(t, err, plugin.ErrArchive)

	_, err = f.pctx.ExtractContent(ctx, domain.Rendition{Filename: "a.pdf"})
	assert.ErrorIs(t, err, plugin.ErrNotConfigured)

	assert.ErrorIs(t, f.pctx.DispatchMail(ctx, plugin.Mail{}), plugin.ErrNotConfigured)
	err = f.pctx.CreateNotification(ctx, plugin.Notification{})
	assert.ErrorIs(t, err, plugin.ErrNotification)
	assert.ErrorIs(t, err, plugin.ErrNotConfigured)
}

type notifierFunc func(ctx context.Context, n plugin.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n plugin.Notification) error { return f(ctx, n) }

func TestPluginContextNotifierErrorsAreNamed(t *testing.T) {
	f := newPluginContext(t)
	f.pctx.Notifier = notifierFunc(func(context.Context, plugin.Notification) error {
		return errors.New("push gateway down")
	})

	err := f.pctx.CreateNotification(context.Background(), plugin.Notification{})
	assert.ErrorIs(t, err, plugin.ErrNotification)
	assert.NotErrorIs(t, err, plugin.ErrNotConfigured)
	assert.ErrorContains(t, err, "push gateway down")

	f.pctx.Notifier = notifierFunc(func(context.Context, plugin.Notification) error { return nil })
	assert.NoError(t, f.pctx.CreateNotification(context.Background(), plugin.Notification{}))
}

func TestPluginContextArchiverErrorsAreNamed(t *testing.T) {
	f := newPluginContext(t)
	var got string
	f.pctx.Archiver = archiverFunc(func(_ context.Context, file io.Reader, _ int64, _ string) error {
		b, _ := io.ReadAll(file)
		got = string(b)
		return errors.New("disk full")
	})

	err := f.pctx.Archive(context.Background(), strings.NewReader("jpeg bytes"), 3, "harbour.jpg")
	assert.ErrorIs(t, err, plugin.ErrArchive)
	assert.NotErrorIs(t, err, plugin.ErrNotConfigured)
	assert.Equal(t, "jpeg bytes", got)
	assert.False(t, plugin.Classify(err).IsPermanent())
}
