package index

import (
	"bufio"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/logger"
)

// IgnoreFileName is read from the root of each remote when present
const IgnoreFileName = ".filesyncignore"

// TempSuffix marks partially written install files
const TempSuffix = ".filesync.tmp"

var defaultIgnoreLines = []string{
	"*" + TempSuffix,
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList decides which root-relative paths stay out of the index
type IgnoreList struct {
	lines  []string
	ignore *gitignore.GitIgnore
}

// NewIgnoreList compiles the defaults plus patterns
func NewIgnoreList(patterns ...string) *IgnoreList {
	lines := make([]string, 0, len(defaultIgnoreLines)+len(patterns))
	lines = append(lines, defaultIgnoreLines...)
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return &IgnoreList{lines: lines, ignore: gitignore.CompileIgnoreLines(lines...)}
}

// LoadIgnoreList builds the list from patterns and the root's ignore file
func LoadIgnoreList(fs afero.Fs, root string, patterns []string) *IgnoreList {
	ignorePath := joinRel(root, IgnoreFileName)
	lines := append([]string(nil), patterns...)

	f, err := fs.Open(ignorePath)
	if err != nil {
		return NewIgnoreList(lines...)
	}
	defer f.Close()

	rules := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
		rules++
	}
	if err := scanner.Err(); err != nil {
		logger.Get().Warn("error reading ignore file", "path", ignorePath, "error", err)
	} else {
		logger.Get().Debug("loaded ignore file", "path", ignorePath, "rules", rules)
	}

	return NewIgnoreList(lines...)
}

// ShouldIgnore reports whether rel (forward slashes) is excluded
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	if l == nil {
		return false
	}
	return l.ignore.MatchesPath(rel)
}

// Excludes reports whether a scan would leave rel out, either directly or
// because one of its parent directories is ignored
func (l *IgnoreList) Excludes(rel string) bool {
	if l == nil {
		return false
	}
	for i, c := range rel {
		if c == '/' && l.ShouldIgnore(rel[:i+1]) {
			return true
		}
	}
	return l.ShouldIgnore(rel)
}

// Lines returns the compiled patterns, defaults first
func (l *IgnoreList) Lines() []string {
	return append([]string(nil), l.lines...)
}
