// Package render produces display artifacts from entry bodies.
package render

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/slatehq/slatebox/internal/content"
)

// kinds rendered eagerly; everything else matching the loader's patterns is
// stored for deferred rendering by the consumer.
var eagerKinds = map[string]bool{
	".md":       true,
	".markdown": true,
}

// Markdown renders GitHub-flavored markdown and reports which local assets
// the rendered output references. Relative image links are rewritten under
// the public base URL when one is configured.
type Markdown struct {
	md      goldmark.Markdown
	baseURL string
}

func NewMarkdown(baseURL string) *Markdown {
	return &Markdown{
		baseURL: strings.Trim(baseURL, "/"),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

func (r *Markdown) CanRender(relPath string) bool {
	return eagerKinds[strings.ToLower(path.Ext(relPath))]
}

func (r *Markdown) Render(ctx context.Context, in content.RenderInput) (*content.Rendered, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	source := []byte(in.Body)
	doc := r.md.Parser().Parse(text.NewReader(source))

	var headings []content.Heading
	var assets []string
	seen := map[string]bool{}
	dir := path.Dir(in.FilePath)

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			h := content.Heading{Depth: node.Level, Text: nodeText(node, source)}
			if id, ok := node.AttributeString("id"); ok {
				if b, ok := id.([]byte); ok {
					h.ID = string(b)
				}
			}
			headings = append(headings, h)
		case *ast.Image:
			dest := string(node.Destination)
			if !localAsset(dest) {
				break
			}
			rel := path.Join(dir, dest)
			if !seen[rel] {
				seen[rel] = true
				assets = append(assets, rel)
			}
			if r.baseURL != "" {
				node.Destination = []byte("/" + path.Join(r.baseURL, rel))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", in.FilePath, err)
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", in.FilePath, err)
	}

	return &content.Rendered{HTML: buf.String(), Headings: headings}, assets, nil
}

// localAsset reports whether dest points at a repository file rather than an
// external URL, an absolute path or an in-page anchor.
func localAsset(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return false
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
