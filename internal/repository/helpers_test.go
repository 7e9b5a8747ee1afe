package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/newsflow/internal/testsupport"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *testsupport.FakeClock
	users    *UserAccountRepository
	flows    *WorkflowRepository
	items    *NewsItemRepository
	jobs     *JobQueueRepository
	events   *JobQueueEventRepository
	configs  *PluginConfigurationRepository
	execs    *ExecutorRepository
	editions *EditionRepository
	wire     *NewswireRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenSQLite(t)
	clock := testsupport.NewFakeClock(epoch)
	return &fixture{
		clock:    clock,
		users:    NewUserAccountRepository(db, SQLite, clock),
		flows:    NewWorkflowRepository(db, SQLite, clock),
		items:    NewNewsItemRepository(db, SQLite, clock),
		jobs:     NewJobQueueRepository(db, SQLite, clock),
		events:   NewJobQueueEventRepository(db, SQLite, clock),
		configs:  NewPluginConfigurationRepository(db, SQLite),
		execs:    NewExecutorRepository(db, SQLite, clock),
		editions: NewEditionRepository(db, SQLite),
		wire:     NewNewswireRepository(db, SQLite, clock),
	}
}

// storyWorkflow is Draft -> In Review -> Published with a Trash state, keyed
// 1..4 before saving.
func storyWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Name:         "story",
		Description:  "news desk",
		StartStateID: 1,
		EndStateID:   3,
		TrashStateID: 4,
		States: []domain.WorkflowState{
			{ID: 1, Name: "Draft", ActorRole: "Journalist", Permission: models.PermissionUser, TreatAsSubmitted: true, DisplayOrder: 1},
			{ID: 2, Name: "In Review", ActorRole: "Editor", Permission: models.PermissionGroup, ShowInInbox: true, DisplayOrder: 2},
			{ID: 3, Name: "Published", ActorRole: "Editor", Permission: models.PermissionGroup, DisplayOrder: 3},
			{ID: 4, Name: "Trash", ActorRole: "Editor", Permission: models.PermissionGroup, DisplayOrder: 4},
		},
		Steps: []domain.WorkflowStep{
			{Name: "Submit", FromStateID: 1, ToStateID: 2, Actions: []domain.WorkflowStepAction{
				{Label: "notify", PluginConfigurationID: 7, ExecutionOrder: 2, DelaySeconds: 30},
				{Label: "log", PluginConfigurationID: 5, ExecutionOrder: 1},
			}},
			{Name: "Publish", FromStateID: 2, ToStateID: 3},
		},
	}
}

func (f *fixture) saveWorkflow(t *testing.T) *domain.Workflow {
	t.Helper()
	wf := storyWorkflow()
	require.NoError(t, f.flows.Save(context.Background(), wf))
	return wf
}

func (f *fixture) saveUser(t *testing.T, name string, roles ...string) *domain.UserAccount {
	t.Helper()
	u := &domain.UserAccount{Username: name, FullName: name, Roles: roles}
	_, err := f.users.Save(context.Background(), u, "secret-"+name)
	require.NoError(t, err)
	return u
}

func (f *fixture) createItem(t *testing.T, wf *domain.Workflow, author *domain.UserAccount) *domain.NewsItem {
	t.Helper()
	start, _ := wf.State(wf.StartStateID)
	item := &domain.NewsItem{
		ContentItem: domain.ContentItem{
			CurrentState: *start,
			Actors:       []domain.ContentItemActor{{UserID: author.ID, Role: "Journalist"}},
		},
		Title:           "Harbour reopens",
		Story:           "The harbour reopened on Monday.",
		TargetWordCount: 400,
		ActualWordCount: 5,
	}
	_, err := f.items.Create(context.Background(), item)
	require.NoError(t, err)
	return item
}
