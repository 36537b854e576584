// Package store persists synced entries keyed by their identifier.
package store

import (
	"errors"
	"time"

	"github.com/slatehq/slatebox/internal/content"
)

// ErrStoreLocked is returned when another process holds the store's
// writer lock.
var ErrStoreLocked = errors.New("store is locked by another process")

// EntryRecord is the stored form of a synced entry.
type EntryRecord struct {
	ID             string             `json:"id"`
	Digest         string             `json:"digest"`
	Data           map[string]any     `json:"data"`
	Body           string             `json:"body"`
	FilePath       string             `json:"filePath"`
	Rendered       *content.Rendered  `json:"rendered,omitempty"`
	DeferredRender bool               `json:"deferredRender,omitempty"`
	AssetImports   []string           `json:"assetImports,omitempty"`
	RenderStale    bool               `json:"renderStale,omitempty"`
	SyncedAt       time.Time          `json:"syncedAt"`
}

// EntrySummary is a lightweight listing row.
type EntrySummary struct {
	ID       string    `json:"id"`
	FilePath string    `json:"filePath"`
	Digest   string    `json:"digest"`
	SyncedAt time.Time `json:"syncedAt"`
}

// Store is the persistence contract the sync engine writes through.
// Get returns (nil, nil) when no record exists for the identifier.
type Store interface {
	Get(id string) (*EntryRecord, error)
	Set(rec *EntryRecord) error
	Delete(id string) error
	Keys() ([]string, error)

	// AddRenderDependency records that the entry's deferred artifact is
	// built from the given project-relative file path.
	AddRenderDependency(id string, filePath string) error

	// InvalidateRenderDependents marks every entry importing the given
	// file as needing a re-render. Returns the number of entries marked.
	InvalidateRenderDependents(filePath string) (int64, error)
}
