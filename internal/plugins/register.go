// Package plugins holds the actions that ship with newsflow.
package plugins

import (
	"context"
	"errors"
	"net/http"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

const (
	ActionLog              = "log"
	ActionRepublish        = "republish"
	ActionRepublishEdition = "republish-edition"
	ActionArchive          = "archive"
	ActionTextDirectory    = "text-directory"
)

// EditionItems lists the stories placed in an edition.
type EditionItems interface {
	FindByEdition(ctx context.Context, editionID int64) ([]domain.NewsItem, error)
}

type Deps struct {
	// Client is used by the republish actions. http.DefaultClient when nil.
	Client       *http.Client
	EditionItems EditionItems
}

// Register adds every built in action to reg.
func Register(reg *plugin.Registry, deps Deps) error {
	client := deps.Client
	if client == nil {
		client = http.DefaultClient
	}
	return errors.Join(
		reg.RegisterWorkflowAction(ActionLog, "Writes the message property to the job log",
			func() plugin.WorkflowAction { return LogAction{} }),
		reg.RegisterWorkflowAction(ActionRepublish, "POSTs the news item as JSON to the endpoint property",
			func() plugin.WorkflowAction { return &Republish{client: client} }),
		reg.RegisterEditionAction(ActionRepublishEdition, "POSTs the edition and its stories as JSON to the endpoint property",
			func() plugin.EditionAction { return &RepublishEdition{client: client, items: deps.EditionItems} }),
		reg.RegisterCatalogueHook(ActionArchive, "Archives a rendition read from the source_directory property",
			func() plugin.CatalogueHook { return Archive{} }),
		reg.RegisterNewswireDecoder(ActionTextDirectory, "Imports *.txt files from the directory property",
			func() plugin.NewswireDecoder { return TextDirectory{} }),
	)
}
