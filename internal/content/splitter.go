package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/slatehq/slatebox/internal/codec"
)

// SplitContext carries per-entry loader context into a Splitter.
type SplitContext struct {
	Path          string // absolute path of the entry
	RelPath       string // slash path relative to the content base
	ModTime       time.Time
	Author        string // default author, injected when front matter has none
	BaseURL       string
	Candidates    []string // candidate list of the pass this entry belongs to
	I18nEnabled   bool
	DefaultLocale string
}

// Splitter separates raw entry bytes into front matter and body. Errors are
// content-correctness problems and fail the entry's sync.
type Splitter interface {
	Split(raw []byte, sctx SplitContext) (map[string]any, string, error)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FrontMatterSplitter handles YAML (---), TOML (+++) and JSON ({) front
// matter. Entries without a recognized opening fence are all body, and empty
// files are valid entries.
type FrontMatterSplitter struct{}

func (FrontMatterSplitter) Split(raw []byte, sctx SplitContext) (map[string]any, string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	data := map[string]any{}
	var body string

	switch {
	case len(raw) == 0:
	case hasFence(raw, "---"):
		fm, rest, err := cutFence(raw, "---")
		if err != nil {
			return nil, "", err
		}
		if err := yaml.Unmarshal(fm, &data); err != nil {
			return nil, "", fmt.Errorf("yaml front matter: %w", err)
		}
		body = string(rest)
	case hasFence(raw, "+++"):
		fm, rest, err := cutFence(raw, "+++")
		if err != nil {
			return nil, "", err
		}
		if err := toml.Unmarshal(fm, &data); err != nil {
			return nil, "", fmt.Errorf("toml front matter: %w", err)
		}
		body = string(rest)
	case raw[0] == '{':
		fm, rest, err := cutJSON(raw)
		if err != nil {
			return nil, "", err
		}
		if err := codec.Unmarshal(fm, &data); err != nil {
			return nil, "", fmt.Errorf("json front matter: %w", err)
		}
		body = string(rest)
	default:
		body = string(raw)
	}

	if data == nil {
		data = map[string]any{}
	}
	if sctx.Author != "" {
		if _, ok := data["author"]; !ok {
			data["author"] = sctx.Author
		}
	}
	if sctx.I18nEnabled {
		if _, ok := data["locale"]; !ok {
			if locale := entryLocale(sctx.RelPath, sctx.DefaultLocale); locale != "" {
				data["locale"] = locale
			}
		}
	}

	return data, strings.TrimPrefix(body, "\n"), nil
}

// hasFence reports whether raw opens with the fence alone on its first line.
func hasFence(raw []byte, fence string) bool {
	if !bytes.HasPrefix(raw, []byte(fence)) {
		return false
	}
	rest := raw[len(fence):]
	if len(rest) == 0 {
		return true
	}
	return rest[0] == '\n' || (len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n')
}

// cutFence returns the bytes between the opening fence line and the closing
// fence line, plus everything after the closer.
func cutFence(raw []byte, fence string) ([]byte, []byte, error) {
	first := bytes.IndexByte(raw, '\n')
	if first < 0 {
		return nil, nil, fmt.Errorf("front matter: unclosed %q fence", fence)
	}

	rest := raw[first+1:]
	offset := 0
	for {
		line := rest[offset:]
		end := bytes.IndexByte(line, '\n')
		if end < 0 {
			if string(bytes.TrimRight(line, "\r")) == fence {
				return rest[:offset], nil, nil
			}
			return nil, nil, fmt.Errorf("front matter: unclosed %q fence", fence)
		}
		if string(bytes.TrimRight(line[:end], "\r")) == fence {
			return rest[:offset], rest[offset+end+1:], nil
		}
		offset += end + 1
	}
}

// cutJSON scans a balanced top-level JSON object so the remainder is body text.
func cutJSON(raw []byte) ([]byte, []byte, error) {
	depth := 0
	inStr := false
	esc := false

	for i, b := range raw {
		if inStr {
			switch {
			case esc:
				esc = false
			case b == '\\':
				esc = true
			case b == '"':
				inStr = false
			}
			continue
		}
		switch b {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[:i+1], raw[i+1:], nil
			}
		}
	}

	return nil, nil, errors.New("front matter: unterminated json object")
}

// entryLocale derives a locale from the first path segment, e.g.
// "fr/guide.md" -> "fr". Entries outside locale directories fall back.
func entryLocale(relPath, fallback string) string {
	if seg, rest, ok := strings.Cut(relPath, "/"); ok && seg != "" && rest != "" {
		return seg
	}
	return fallback
}
