package inclusion

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"backup-timeline/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// MarkerFileName is the name of the files declaring include patterns.
const MarkerFileName = ".timelineinclude"

// FindMarkers returns the absolute paths of every marker file under root,
// sorted lexically.
func FindMarkers(root string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), "**/"+MarkerFileName,
		doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("failed to search %s for %s files: %w", root, MarkerFileName, err)
	}

	markers := make([]string, 0, len(matches))
	for _, m := range matches {
		markers = append(markers, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(markers)
	return markers, nil
}

// LoadPatterns reads every marker file under root and returns the declared
// patterns joined with root. Blank lines and lines starting with '#' are skipped.
func LoadPatterns(root string) ([]string, error) {
	markers, err := FindMarkers(root)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, marker := range markers {
		lines, err := readLines(marker)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			patterns = append(patterns, joinPattern(root, line))
		}
	}
	return patterns, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open include file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close include file %s: %v", path, err)
		}
	}()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read include file %s: %w", path, err)
	}
	return lines, nil
}

// braceQuoter makes braces in marker lines literal. Marker syntax has no
// {a,b} alternation.
var braceQuoter = strings.NewReplacer("{", `\{`, "}", `\}`)

// joinPattern anchors a marker line at root. The root is quoted so that glob
// metacharacters in directory names match literally.
func joinPattern(root, line string) string {
	root = strings.TrimRight(filepath.Clean(root), string(filepath.Separator))
	line = strings.TrimLeft(filepath.ToSlash(line), "/")
	return glob.QuoteMeta(root) + string(filepath.Separator) + braceQuoter.Replace(filepath.FromSlash(line))
}

// Filter matches paths against a set of compiled include patterns.
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// Compile builds a Filter. Patterns are matched against whole path strings:
// both '*' and '**' cross path separators.
func Compile(patterns []string) (*Filter, error) {
	f := &Filter{patterns: patterns, globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Patterns returns the source patterns in declaration order.
func (f *Filter) Patterns() []string {
	return f.patterns
}

// Match reports whether path matches at least one pattern.
func (f *Filter) Match(path string) bool {
	for _, g := range f.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Select returns the candidates that match, preserving their order.
func (f *Filter) Select(candidates []string) []string {
	var selected []string
	for _, c := range candidates {
		if f.Match(c) {
			selected = append(selected, c)
		}
	}
	return selected
}

// Apply loads the include patterns declared under root and returns the
// candidates matching at least one of them. A backup without marker files
// contributes no files.
func Apply(root string, candidates []string) ([]string, error) {
	patterns, err := LoadPatterns(root)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		logging.Warn("No %s files found in %s/", MarkerFileName, root)
		return nil, nil
	}

	filter, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	logging.Debug("Loaded %d include patterns from %s", len(patterns), root)
	return filter.Select(candidates), nil
}
