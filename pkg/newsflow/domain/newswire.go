package domain

import (
	"database/sql"
	"time"
)

// NewswireService is a feed that a decoder action pulls items from.
type NewswireService struct {
	ID                    int64
	Name                  string
	PluginConfigurationID sql.NullInt64
	Active                bool
	LastFetch             sql.NullTime
}

type NewswireItem struct {
	ID                int64
	NewswireServiceID int64
	ExternalID        string
	Title             string
	Summary           string
	Content           string
	Published         sql.NullTime
	Created           time.Time
}

// Rendition identifies one file of a catalogue media item.
type Rendition struct {
	CatalogueID int64
	MediaItemID int64
	Filename    string
	ContentType string
}
