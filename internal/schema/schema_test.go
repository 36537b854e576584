package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNoRules(t *testing.T) {
	data := map[string]any{"anything": "goes"}

	got, err := New(nil).Validate("posts/a", data, "content/a.md")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestValidatePasses(t *testing.T) {
	v := New(Rules{"title": "required"})
	data := map[string]any{"title": "Hello", "extra": 42}

	got, err := v.Validate("posts/a", data, "content/a.md")
	require.NoError(t, err)
	assert.Equal(t, data, got, "extra fields pass through untouched")
}

func TestValidateFails(t *testing.T) {
	v := New(Rules{"title": "required", "weight": "required"})

	_, err := v.Validate("posts/a", map[string]any{"weight": 1}, "content/a.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posts/a")
	assert.Contains(t, err.Error(), "content/a.md")
	assert.Contains(t, err.Error(), `"title"`)
	assert.NotContains(t, err.Error(), `"weight"`)
}

func TestValidateTagRules(t *testing.T) {
	v := New(Rules{"email": "omitempty,email"})

	_, err := v.Validate("a", map[string]any{"email": "not-an-email"}, "a.md")
	assert.Error(t, err)

	got, err := v.Validate("a", map[string]any{"email": "dev@example.com"}, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", got["email"])
}
