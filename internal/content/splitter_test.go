package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitYAMLFrontMatter(t *testing.T) {
	raw := []byte("---\ntitle: Hello\ntags:\n  - go\n  - sync\n---\n\n# Heading\n\nBody text.\n")

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{RelPath: "posts/hello.md"})
	require.NoError(t, err)

	assert.Equal(t, "Hello", data["title"])
	assert.Equal(t, []any{"go", "sync"}, data["tags"])
	assert.Equal(t, "# Heading\n\nBody text.\n", body)
}

func TestSplitTOMLFrontMatter(t *testing.T) {
	raw := []byte("+++\ntitle = \"Hello\"\nweight = 3\n+++\nBody.\n")

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{})
	require.NoError(t, err)

	assert.Equal(t, "Hello", data["title"])
	assert.EqualValues(t, 3, data["weight"])
	assert.Equal(t, "Body.\n", body)
}

func TestSplitJSONFrontMatter(t *testing.T) {
	raw := []byte(`{"title": "Hello", "nested": {"a": "b"}}` + "\nBody.\n")

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{})
	require.NoError(t, err)

	assert.Equal(t, "Hello", data["title"])
	assert.Equal(t, map[string]any{"a": "b"}, data["nested"])
	assert.Equal(t, "Body.\n", body)
}

func TestSplitNoFrontMatter(t *testing.T) {
	raw := []byte("Just text, no fences.\n")

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{})
	require.NoError(t, err)

	assert.Empty(t, data)
	assert.Equal(t, "Just text, no fences.\n", body)
}

func TestSplitEmptyContent(t *testing.T) {
	data, body, err := FrontMatterSplitter{}.Split(nil, SplitContext{})
	require.NoError(t, err)

	assert.NotNil(t, data)
	assert.Empty(t, data)
	assert.Empty(t, body)
}

func TestSplitCRLF(t *testing.T) {
	raw := []byte("---\r\ntitle: Hi\r\n---\r\nBody\r\n")

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{})
	require.NoError(t, err)

	assert.Equal(t, "Hi", data["title"])
	assert.Equal(t, "Body\r\n", body)
}

func TestSplitErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unclosed yaml fence", "---\ntitle: x\nno closer"},
		{"unclosed toml fence", "+++\ntitle = \"x\"\n"},
		{"malformed yaml", "---\n[broken\n---\nbody"},
		{"yaml scalar front matter", "---\njust a string\n---\nbody"},
		{"unterminated json", `{"title": "x"` + "\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FrontMatterSplitter{}.Split([]byte(tt.raw), SplitContext{})
			assert.Error(t, err)
		})
	}
}

func TestSplitStripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("---\ntitle: x\n---\nbody")...)

	data, body, err := FrontMatterSplitter{}.Split(raw, SplitContext{})
	require.NoError(t, err)

	assert.Equal(t, "x", data["title"])
	assert.Equal(t, "body", body)
}

func TestSplitInjectsDefaultAuthor(t *testing.T) {
	data, _, err := FrontMatterSplitter{}.Split([]byte("---\ntitle: x\n---\n"), SplitContext{Author: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", data["author"])

	data, _, err = FrontMatterSplitter{}.Split([]byte("---\nauthor: grace\n---\n"), SplitContext{Author: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "grace", data["author"])
}

func TestSplitInjectsLocale(t *testing.T) {
	sctx := SplitContext{RelPath: "fr/guide.md", I18nEnabled: true, DefaultLocale: "en"}
	data, _, err := FrontMatterSplitter{}.Split([]byte("content"), sctx)
	require.NoError(t, err)
	assert.Equal(t, "fr", data["locale"])

	sctx = SplitContext{RelPath: "guide.md", I18nEnabled: true, DefaultLocale: "en"}
	data, _, err = FrontMatterSplitter{}.Split([]byte("content"), sctx)
	require.NoError(t, err)
	assert.Equal(t, "en", data["locale"])

	// explicit locale wins
	sctx = SplitContext{RelPath: "fr/guide.md", I18nEnabled: true}
	data, _, err = FrontMatterSplitter{}.Split([]byte("---\nlocale: de\n---\n"), sctx)
	require.NoError(t, err)
	assert.Equal(t, "de", data["locale"])

	// disabled leaves data untouched
	data, _, err = FrontMatterSplitter{}.Split([]byte("content"), SplitContext{RelPath: "fr/guide.md"})
	require.NoError(t, err)
	assert.NotContains(t, data, "locale")
}
