package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RealZimboGuy/newsflow/internal/plugin"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

const defaultRepublishTimeout = 30 * time.Second

type storyPayload struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Story        string    `json:"story"`
	State        string    `json:"state"`
	WordCount    int       `json:"word_count"`
	OutletID     *int64    `json:"outlet_id,omitempty"`
	EditionID    *int64    `json:"edition_id,omitempty"`
	CurrentActor string    `json:"current_actor"`
	Version      int64     `json:"version"`
	Updated      time.Time `json:"updated"`
}

type editionPayload struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	OutletID        int64          `json:"outlet_id"`
	PublicationDate time.Time      `json:"publication_date"`
	Stories         []storyPayload `json:"stories"`
}

func newStoryPayload(n *domain.NewsItem) storyPayload {
	p := storyPayload{
		ID:           n.ID,
		Title:        n.Title,
		Story:        n.Story,
		State:        n.CurrentState.Name,
		WordCount:    n.ActualWordCount,
		CurrentActor: n.PrecalculatedCurrentActor,
		Version:      n.Version,
		Updated:      n.Updated,
	}
	if n.OutletID.Valid {
		p.OutletID = &n.OutletID.Int64
	}
	if n.EditionID.Valid {
		p.EditionID = &n.EditionID.Int64
	}
	return p
}

// Republish sends a news item to an external publishing endpoint.
type Republish struct {
	client *http.Client
}

func (r *Republish) Execute(ctx context.Context, inv plugin.Invocation, item *domain.NewsItem) error {
	if err := post(ctx, r.client, inv.Properties, newStoryPayload(item)); err != nil {
		return err
	}
	inv.Context.Log(ctx, plugin.SeverityInfo, "republished news item", []plugin.Subject{{Type: models.TypeClassNewsItem, ID: item.ID}})
	return nil
}

// RepublishEdition sends an edition with every story placed in it.
type RepublishEdition struct {
	client *http.Client
	items  EditionItems
}

func (r *RepublishEdition) Execute(ctx context.Context, inv plugin.Invocation, edition *domain.Edition) error {
	payload := editionPayload{
		ID:              edition.ID,
		Name:            edition.Name,
		OutletID:        edition.OutletID,
		PublicationDate: edition.PublicationDate,
		Stories:         []storyPayload{},
	}
	if r.items != nil {
		stories, err := r.items.FindByEdition(ctx, edition.ID)
		if err != nil {
			return fmt.Errorf("stories of edition %d: %w", edition.ID, err)
		}
		for i := range stories {
			payload.Stories = append(payload.Stories, newStoryPayload(&stories[i]))
		}
	}
	if err := post(ctx, r.client, inv.Properties, payload); err != nil {
		return err
	}
	inv.Context.Log(ctx, plugin.SeverityInfo, "republished edition", []plugin.Subject{{Type: models.TypeClassEdition, ID: edition.ID}},
		"stories", len(payload.Stories))
	return nil
}

// post sends body to the endpoint property. Client errors are permanent;
// server and transport errors are left transient.
func post(ctx context.Context, client *http.Client, props models.Properties, body any) error {
	endpoint := props.Get("endpoint")
	if endpoint == "" {
		return plugin.Permanentf("republish: endpoint property is required")
	}
	timeout := defaultRepublishTimeout
	if raw := props.Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return plugin.Permanentf("republish: bad timeout %q", raw)
		}
		timeout = d
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return plugin.Permanent(fmt.Errorf("republish: encode: %w", err))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return plugin.Permanent(fmt.Errorf("republish: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := props.Get("authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("republish to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return plugin.Permanentf("republish to %s: %s: %s", endpoint, resp.Status, bytes.TrimSpace(snippet))
	default:
		return fmt.Errorf("republish to %s: %s", endpoint, resp.Status)
	}
}
