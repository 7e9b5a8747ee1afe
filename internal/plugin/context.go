package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// Errors raised by PluginContext collaborators. An action that lets one of
// them escape gets a transient failure.
var (
	ErrNotConfigured   = errors.New("collaborator not configured")
	ErrEnrich          = errors.New("enrich failed")
	ErrIndexing        = errors.New("search engine indexing failed")
	ErrArchive         = errors.New("archive failed")
	ErrNewswireDecoder = errors.New("newswire decoding failed")
	ErrMail            = errors.New("mail dispatch failed")
	ErrExtract         = errors.New("content extraction failed")
	ErrNotification    = errors.New("notification failed")
)

// NotConfigured returns kind wrapped together with ErrNotConfigured.
func NotConfigured(kind error, collaborator string) error {
	return fmt.Errorf("%w: %s: %w", kind, collaborator, ErrNotConfigured)
}

type Severity string

const (
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Subject names an entity a log line is about.
type Subject struct {
	Type string
	ID   int64
}

type Mail struct {
	To      []string
	Subject string
	Body    string
}

type Notification struct {
	UserID  int64
	Message string
	Subject Subject
}

// PluginContext is the set of services an action may use. Implementations
// must be safe for concurrent use by the worker pool.
type PluginContext interface {
	Log(ctx context.Context, severity Severity, message string, subjects []Subject, args ...any)

	CreateNewswireItem(ctx context.Context, item *domain.NewswireItem) error
	FindNewswireItemsByExternalID(ctx context.Context, externalID string) ([]domain.NewswireItem, error)

	Index(ctx context.Context, item *domain.NewsItem) error
	DispatchMail(ctx context.Context, mail Mail) error
	CreateNotification(ctx context.Context, n Notification) error

	// CurrentUserAccount returns the user the job was scheduled for.
	CurrentUserAccount(ctx context.Context) (*domain.UserAccount, error)
	FindUserAccountsByRole(ctx context.Context, role string) ([]domain.UserAccount, error)
	FindNewsItemsByStateAndOutlet(ctx context.Context, state string, outletID int64) ([]domain.NewsItem, error)

	Archive(ctx context.Context, file io.Reader, catalogueID int64, filename string) error
	Enrich(ctx context.Context, story string) (string, error)
	ExtractContent(ctx context.Context, rendition domain.Rendition) (string, error)
}
