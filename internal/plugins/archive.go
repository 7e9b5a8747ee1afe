package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// Archive hands a rendition file to the archive collaborator. The file is
// read from the source_directory property.
type Archive struct{}

func (Archive) Execute(ctx context.Context, inv plugin.Invocation, r domain.Rendition) error {
	dir := inv.Properties.Get("source_directory")
	if dir == "" {
		return plugin.Permanentf("archive: source_directory property is required")
	}
	if filepath.Base(r.Filename) != r.Filename {
		return plugin.Permanentf("archive: filename %q must not contain a path", r.Filename)
	}
	f, err := os.Open(filepath.Join(dir, r.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		return plugin.Permanent(fmt.Errorf("archive: %w", err))
	}
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer f.Close()

	if err := inv.Context.Archive(ctx, f, r.CatalogueID, r.Filename); err != nil {
		return err
	}
	inv.Context.Log(ctx, plugin.SeverityInfo, "archived rendition", []plugin.Subject{{Type: models.TypeClassMediaItem, ID: r.MediaItemID}},
		"catalogue_id", r.CatalogueID, "filename", r.Filename)
	return nil
}
