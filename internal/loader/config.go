package loader

import (
	"log/slog"
	"time"

	"github.com/slatehq/slatebox/internal/content"
	"github.com/slatehq/slatebox/internal/schema"
	"github.com/slatehq/slatebox/internal/store"
)

const (
	DefaultName        = "content"
	DefaultConcurrency = 8

	// DefaultWatchDebounce coalesces editor write bursts per path.
	DefaultWatchDebounce = 500 * time.Millisecond

	// ConfigFileName never becomes an entry, even when it matches a
	// pattern inside the content directory.
	ConfigFileName = "slatebox.yaml"
)

// Config describes one synced collection. Zero values get sensible
// defaults; only Dir is commonly set.
type Config struct {
	// Name identifies the collection and seeds StorePath and BaseURL
	// defaults.
	Name string

	// RootDir is the project root. Stored file paths are relative to it.
	// Defaults to the working directory.
	RootDir string

	// Dir is the content directory, relative to RootDir unless absolute.
	Dir string

	// Patterns select candidate files inside Dir (doublestar syntax, a
	// leading "!" excludes).
	Patterns []string

	// StorePath locates the SQLite database. ":memory:" is valid.
	// Defaults to <RootDir>/.slatebox/<Name>.db. Ignored when Store is set.
	StorePath string

	// Concurrency caps how many entries sync in parallel during a pass.
	Concurrency int

	// BaseURL prefixes rewritten asset links in rendered output.
	// Defaults to Name.
	BaseURL string

	// DefaultAuthor is injected into front matter lacking an author.
	DefaultAuthor string

	// I18n derives each entry's locale from its first path segment.
	I18n          bool
	DefaultLocale string

	// Resync runs an extra full pass on this interval while watching.
	// Zero disables periodic resync.
	Resync time.Duration

	// WatchDebounce overrides DefaultWatchDebounce.
	WatchDebounce time.Duration

	// Rules validate front matter (field name to validator tag).
	Rules schema.Rules

	// Ident overrides identifier derivation.
	Ident content.IdentFunc

	// Store overrides persistence. When nil a SQLite store is opened at
	// StorePath and owned (closed) by the loader.
	Store store.Store

	// Splitter overrides front matter extraction.
	Splitter content.Splitter

	// Renderer overrides artifact rendering. The default renders
	// markdown eagerly and defers everything else.
	Renderer content.Renderer

	// Events receives sync notifications.
	Events Sink

	Logger *slog.Logger
}
