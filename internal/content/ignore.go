package content

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/slatehq/slatebox/internal/utils"
)

// IgnoreFileName extends the built-in ignore rules when present at the
// content base.
const IgnoreFileName = ".slateboxignore"

var defaultIgnoreLines = []string{
	// slatebox
	".slatebox/",
	IgnoreFileName,
	// VCS
	".git/",
	".hg/",
	".svn/",
	// editors
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// general excludes
	"node_modules/",
	"*.tmp",
	"*.log",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList filters candidate paths with gitignore-style rules.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	l := &IgnoreList{baseDir: baseDir}
	l.Load()
	return l
}

// Load compiles the default rules plus any rules found in the base's ignore
// file. Safe to call again to pick up edits.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	lines := make([]string, 0, len(defaultIgnoreLines)+8)
	lines = append(lines, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				lines = append(lines, line)
				rules++
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore reports whether the base-relative path is excluded.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	return l.ignore.MatchesPath(rel)
}
