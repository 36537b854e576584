package content

import (
	"path"
	"strings"

	"github.com/gosimple/slug"
)

// Ident is the default identifier derivation: an explicit front matter slug
// wins, otherwise the extension-free relative path with each segment
// slugified. Distinct paths derive distinct identifiers unless a slug
// override makes them collide, in which case the last synced entry wins.
func Ident(relPath string, data map[string]any) string {
	if s, ok := data["slug"].(string); ok && s != "" {
		if cleaned := strings.Trim(path.Clean(s), "/"); cleaned != "" && cleaned != "." {
			return cleaned
		}
	}

	trimmed := strings.TrimSuffix(relPath, path.Ext(relPath))
	segs := strings.Split(trimmed, "/")
	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, slug.Make(seg))
	}
	return strings.Join(out, "/")
}
