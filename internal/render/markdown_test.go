package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatehq/slatebox/internal/content"
)

func TestCanRender(t *testing.T) {
	r := NewMarkdown("")

	assert.True(t, r.CanRender("guides/intro.md"))
	assert.True(t, r.CanRender("notes.markdown"))
	assert.True(t, r.CanRender("UPPER.MD"))
	assert.False(t, r.CanRender("page.mdx"))
	assert.False(t, r.CanRender("page.mdoc"))
	assert.False(t, r.CanRender("readme.txt"))
}

func TestRenderHeadings(t *testing.T) {
	r := NewMarkdown("")

	body := "# Hello World\n\nsome text\n\n## Second *Part*\n"
	out, assets, err := r.Render(context.Background(), content.RenderInput{
		ID:       "hello",
		Body:     body,
		FilePath: "hello.md",
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Empty(t, assets)

	require.Len(t, out.Headings, 2)
	assert.Equal(t, 1, out.Headings[0].Depth)
	assert.Equal(t, "Hello World", out.Headings[0].Text)
	assert.Equal(t, "hello-world", out.Headings[0].ID)
	assert.Equal(t, 2, out.Headings[1].Depth)
	assert.Equal(t, "Second Part", out.Headings[1].Text)

	assert.Contains(t, out.HTML, `id="hello-world"`)
}

func TestRenderGFMTable(t *testing.T) {
	r := NewMarkdown("")

	body := "| a | b |\n|---|---|\n| 1 | 2 |\n"
	out, _, err := r.Render(context.Background(), content.RenderInput{Body: body, FilePath: "t.md"})
	require.NoError(t, err)
	assert.Contains(t, out.HTML, "<table>")
	assert.Contains(t, out.HTML, "<td>1</td>")
}

func TestRenderCollectsLocalAssets(t *testing.T) {
	r := NewMarkdown("docs")

	body := "![logo](img/logo.png)\n\n![logo](img/logo.png)\n\n![ext](https://cdn.example.com/x.png)\n\n![abs](/static/y.png)\n"
	out, assets, err := r.Render(context.Background(), content.RenderInput{
		Body:     body,
		FilePath: "guides/intro.md",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"guides/img/logo.png"}, assets)
	assert.Contains(t, out.HTML, `src="/docs/guides/img/logo.png"`)
	assert.Contains(t, out.HTML, `src="https://cdn.example.com/x.png"`)
	assert.Contains(t, out.HTML, `src="/static/y.png"`)
}

func TestRenderNoBaseURLKeepsDestinations(t *testing.T) {
	r := NewMarkdown("")

	body := "![logo](img/logo.png)\n"
	out, assets, err := r.Render(context.Background(), content.RenderInput{
		Body:     body,
		FilePath: "guides/intro.md",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"guides/img/logo.png"}, assets)
	assert.Contains(t, out.HTML, `src="img/logo.png"`)
}

func TestRenderRawHTMLPassesThrough(t *testing.T) {
	r := NewMarkdown("")

	out, _, err := r.Render(context.Background(), content.RenderInput{
		Body:     "<div class=\"callout\">hi</div>\n",
		FilePath: "n.md",
	})
	require.NoError(t, err)
	assert.Contains(t, out.HTML, `<div class="callout">hi</div>`)
}

func TestRenderCancelledContext(t *testing.T) {
	r := NewMarkdown("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Render(ctx, content.RenderInput{Body: "# x", FilePath: "x.md"})
	assert.ErrorIs(t, err, context.Canceled)
}
