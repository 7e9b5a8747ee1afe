package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// FailureKind decides whether a failed job may run again.
type FailureKind int

const (
	KindTransient FailureKind = iota
	KindPermanent
)

func (k FailureKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// ActionError is the outcome of a failed plugin action.
type ActionError struct {
	Kind FailureKind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action failure: %v", e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func (e *ActionError) IsPermanent() bool { return e.Kind == KindPermanent }

// Permanent tags err so the job is marked terminal instead of retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Kind: KindPermanent, Err: err}
}

// Transient tags err so the job is retried on a later pass.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Kind: KindTransient, Err: err}
}

// Permanentf is shorthand for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// Classify turns any error returned by an action into an ActionError. Errors
// without a tag are transient, except a missing entity which can never
// succeed on retry.
func Classify(err error) *ActionError {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, repository.ErrNotFound) {
		return &ActionError{Kind: KindPermanent, Err: err}
	}
	return &ActionError{Kind: KindTransient, Err: err}
}

// Invocation carries everything an action gets besides its target.
type Invocation struct {
	Context PluginContext
	// Properties come from the plugin configuration and are shared by every
	// job using it.
	Properties models.Properties
	// Parameters are scoped to the one scheduled execution.
	Parameters models.Properties
	Job        *domain.JobQueueItem
}

// WorkflowAction runs against a news item, typically on a workflow step.
type WorkflowAction interface {
	Execute(ctx context.Context, inv Invocation, item *domain.NewsItem) error
}

type EditionAction interface {
	Execute(ctx context.Context, inv Invocation, edition *domain.Edition) error
}

// CatalogueHook runs against a single rendition of a media item.
type CatalogueHook interface {
	Execute(ctx context.Context, inv Invocation, rendition domain.Rendition) error
}

// NewswireDecoder pulls items from a newswire service into the store.
type NewswireDecoder interface {
	Decode(ctx context.Context, inv Invocation, service *domain.NewswireService) error
}
