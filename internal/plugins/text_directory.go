package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// TextDirectory decodes a directory of plain text wire copy. The first line
// of each *.txt file is the title, the rest is the content and the file name
// is the external id. Files this service already imported are skipped.
type TextDirectory struct{}

func (TextDirectory) Decode(ctx context.Context, inv plugin.Invocation, svc *domain.NewswireService) error {
	dir := inv.Properties.Get("directory")
	if dir == "" {
		return plugin.Permanentf("text-directory: directory property is required")
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return plugin.Permanent(fmt.Errorf("%w: %w", plugin.ErrNewswireDecoder, err))
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return plugin.Permanent(fmt.Errorf("%w: %w", plugin.ErrNewswireDecoder, err))
	}
	sort.Strings(files)

	var imported, skipped int
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		externalID := filepath.Base(path)
		existing, err := inv.Context.FindNewswireItemsByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if importedFrom(existing, svc.ID) {
			skipped++
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", plugin.ErrNewswireDecoder, err)
		}
		title, content, _ := strings.Cut(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
		item := &domain.NewswireItem{
			NewswireServiceID: svc.ID,
			ExternalID:        externalID,
			Title:             strings.TrimSpace(title),
			Content:           strings.TrimSpace(content),
		}
		item.Summary = summary(item.Content)
		if err := inv.Context.CreateNewswireItem(ctx, item); err != nil {
			return err
		}
		imported++
	}
	inv.Context.Log(ctx, plugin.SeverityInfo, "decoded newswire directory", []plugin.Subject{{Type: models.TypeClassNewswireService, ID: svc.ID}},
		"imported", imported, "skipped", skipped)
	return nil
}

// importedFrom reports whether one of items belongs to service serviceID.
// External ids are only unique within a service.
func importedFrom(items []domain.NewswireItem, serviceID int64) bool {
	for _, it := range items {
		if it.NewswireServiceID == serviceID {
			return true
		}
	}
	return false
}

// summary is the first paragraph of content.
func summary(content string) string {
	first, _, _ := strings.Cut(content, "\n\n")
	return strings.Join(strings.Fields(first), " ")
}
