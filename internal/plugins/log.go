package plugins

import (
	"context"
	"strings"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// LogAction writes its message property, at the optional severity property,
// through the plugin context.
type LogAction struct{}

func (LogAction) Execute(ctx context.Context, inv plugin.Invocation, item *domain.NewsItem) error {
	msg := inv.Properties.GetOr("message", "workflow action ran")
	sev := plugin.Severity(strings.ToUpper(inv.Properties.GetOr("severity", string(plugin.SeverityInfo))))
	switch sev {
	case plugin.SeverityDebug, plugin.SeverityInfo, plugin.SeverityWarn, plugin.SeverityError:
	default:
		return plugin.Permanentf("log: unknown severity %q", sev)
	}
	inv.Context.Log(ctx, sev, msg, []plugin.Subject{{Type: models.TypeClassNewsItem, ID: item.ID}},
		"title", item.Title, "state", item.CurrentState.Name)
	return nil
}
