// Package content holds the per-entry building blocks of the sync pipeline:
// reading, front matter splitting, identifier derivation, digesting and the
// matching rules that decide which files are entries at all.
package content

import "context"

// Heading is one document heading captured during rendering.
type Heading struct {
	Depth int    `json:"depth"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

// Rendered is the display-ready artifact produced for an entry.
type Rendered struct {
	HTML     string    `json:"html"`
	Headings []Heading `json:"headings,omitempty"`
}

// RenderInput carries everything a Renderer gets about one entry.
type RenderInput struct {
	ID       string
	Data     map[string]any
	Body     string
	FilePath string
	Digest   string
}

// Renderer turns entry bodies into display artifacts. Render also reports the
// local asset paths the output references. Entries whose kind the renderer
// does not handle eagerly are stored for deferred rendering downstream.
type Renderer interface {
	CanRender(relPath string) bool
	Render(ctx context.Context, in RenderInput) (*Rendered, []string, error)
}

// IdentFunc derives the stable store identifier for an entry.
type IdentFunc func(relPath string, data map[string]any) string
