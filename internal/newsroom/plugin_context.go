package newsroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

var ErrNoCurrentUser = errors.New("no current user on context")

const EventLog = "LOG"

// Optional collaborators. A PluginContext without one returns the matching
// named error wrapping plugin.ErrNotConfigured.
type (
	Indexer interface {
		Index(ctx context.Context, item *domain.NewsItem) error
	}
	Mailer interface {
		Send(ctx context.Context, mail plugin.Mail) error
	}
	Notifier interface {
		Notify(ctx context.Context, n plugin.Notification) error
	}
	Archiver interface {
		Archive(ctx context.Context, file io.Reader, catalogueID int64, filename string) error
	}
	Enricher interface {
		Enrich(ctx context.Context, story string) (string, error)
	}
	Extractor interface {
		Extract(ctx context.Context, rendition domain.Rendition) (string, error)
	}
)

type NewswireStore interface {
	SaveItem(ctx context.Context, item *domain.NewswireItem) (int64, error)
	FindItemsByExternalID(ctx context.Context, externalID string) ([]domain.NewswireItem, error)
}

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	FindByRole(ctx context.Context, role string) ([]domain.UserAccount, error)
}

type NewsItemQuery interface {
	FindByStateAndOutlet(ctx context.Context, stateName string, outletID int64) ([]domain.NewsItem, error)
}

type EventSaver interface {
	Save(ctx context.Context, e *domain.JobQueueEvent) (int64, error)
}

// PluginContext is the repository backed plugin.PluginContext.
type PluginContext struct {
	wire   NewswireStore
	users  UserStore
	items  NewsItemQuery
	events EventSaver
	clock  core.Clock

	Indexer   Indexer
	Mailer    Mailer
	Notifier  Notifier
	Archiver  Archiver
	Enricher  Enricher
	Extractor Extractor
}

var _ plugin.PluginContext = (*PluginContext)(nil)

func NewPluginContext(wire NewswireStore, users UserStore, items NewsItemQuery, events EventSaver, clock core.Clock) *PluginContext {
	clock = core.OrReal(clock)
	return &PluginContext{wire: wire, users: users, items: items, events: events, clock: clock}
}

// Log writes to slog and, when ctx belongs to a job, to the job's events.
func (p *PluginContext) Log(ctx context.Context, severity plugin.Severity, message string, subjects []plugin.Subject, args ...any) {
	attrs := append([]any{}, args...)
	for _, s := range subjects {
		attrs = append(attrs, "subject", fmt.Sprintf("%s:%d", s.Type, s.ID))
	}
	jobID, hasJob := core.JobIDFrom(ctx)
	if hasJob {
		attrs = append(attrs, "job_id", jobID)
	}
	slog.Log(ctx, slogLevel(severity), message, attrs...)

	if !hasJob || p.events == nil {
		return
	}
	text := message
	if len(args) > 0 {
		text = message + " " + fmt.Sprint(args...)
	}
	if len(subjects) > 0 {
		names := make([]string, 0, len(subjects))
		for _, s := range subjects {
			names = append(names, fmt.Sprintf("%s:%d", s.Type, s.ID))
		}
		text += " [" + strings.Join(names, ", ") + "]"
	}
	_, _ = p.events.Save(ctx, &domain.JobQueueEvent{
		JobQueueID: jobID,
		Type:       EventLog,
		Text:       fmt.Sprintf("%s %s", severity, text),
		DateTime:   p.clock.Now().UTC(),
	})
}

func slogLevel(s plugin.Severity) slog.Level {
	switch s {
	case plugin.SeverityDebug:
		return slog.LevelDebug
	case plugin.SeverityWarn:
		return slog.LevelWarn
	case plugin.SeverityError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (p *PluginContext) CreateNewswireItem(ctx context.Context, item *domain.NewswireItem) error {
	if _, err := p.wire.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("%w: store %q: %w", plugin.ErrNewswireDecoder, item.ExternalID, err)
	}
	return nil
}

func (p *PluginContext) FindNewswireItemsByExternalID(ctx context.Context, externalID string) ([]domain.NewswireItem, error) {
	return p.wire.FindItemsByExternalID(ctx, externalID)
}

func (p *PluginContext) Index(ctx context.Context, item *domain.NewsItem) error {
	if p.Indexer == nil {
		return plugin.NotConfigured(plugin.ErrIndexing, "indexer")
	}
	if err := p.Indexer.Index(ctx, item); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrIndexing, err)
	}
	return nil
}

func (p *PluginContext) DispatchMail(ctx context.Context, mail plugin.Mail) error {
	if p.Mailer == nil {
		return plugin.NotConfigured(plugin.ErrMail, "mailer")
	}
	if err := p.Mailer.Send(ctx, mail); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrMail, err)
	}
	return nil
}

func (p *PluginContext) CreateNotification(ctx context.Context, n plugin.Notification) error {
	if p.Notifier == nil {
		return plugin.NotConfigured(plugin.ErrNotification, "notifier")
	}
	if err := p.Notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrNotification, err)
	}
	return nil
}

// CurrentUserAccount looks up the user named by the job's username parameter.
func (p *PluginContext) CurrentUserAccount(ctx context.Context) (*domain.UserAccount, error) {
	name := core.UsernameFrom(ctx)
	if name == "" {
		return nil, ErrNoCurrentUser
	}
	return p.users.FindByUsername(ctx, name)
}

func (p *PluginContext) FindUserAccountsByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	return p.users.FindByRole(ctx, role)
}

func (p *PluginContext) FindNewsItemsByStateAndOutlet(ctx context.Context, state string, outletID int64) ([]domain.NewsItem, error) {
	return p.items.FindByStateAndOutlet(ctx, state, outletID)
}

func (p *PluginContext) Archive(ctx context.Context, file io.Reader, catalogueID int64, filename string) error {
	if p.Archiver == nil {
		return plugin.NotConfigured(plugin.ErrArchive, "archiver")
	}
	if err := p.Archiver.Archive(ctx, file, catalogueID, filename); err != nil {
		return fmt.Errorf("%w: %s in catalogue %d: %w", plugin.ErrArchive, filename, catalogueID, err)
	}
	return nil
}

func (p *PluginContext) Enrich(ctx context.Context, story string) (string, error) {
	if p.Enricher == nil {
		return "", plugin.NotConfigured(plugin.ErrEnrich, "enricher")
	}
	out, err := p.Enricher.Enrich(ctx, story)
	if err != nil {
		return "", fmt.Errorf("%w: %w", plugin.ErrEnrich, err)
	}
	return out, nil
}

func (p *PluginContext) ExtractContent(ctx context.Context, rendition domain.Rendition) (string, error) {
	if p.Extractor == nil {
		return "", plugin.NotConfigured(plugin.ErrExtract, "extractor")
	}
	out, err := p.Extractor.Extract(ctx, rendition)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", plugin.ErrExtract, rendition.Filename, err)
	}
	return out, nil
}
