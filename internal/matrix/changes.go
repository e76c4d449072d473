package matrix

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"scbuilder/internal/catalog"
)

// MatchChanged maps changed file paths to the tools whose build inputs
// they touch. A tool matches when a path falls under its build context or
// matches one of its extra path patterns. Returned names are sorted and
// unique.
func MatchChanged(c *catalog.Catalog, changed []string) ([]string, error) {
	if len(changed) == 0 {
		return nil, nil
	}

	normalized := make([]string, 0, len(changed))
	for _, p := range changed {
		p = path.Clean(strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./"))
		if p == "." || p == "" {
			continue
		}
		normalized = append(normalized, p)
	}

	hit := make(map[string]bool)
	for _, t := range c.Tools {
		patterns := make([]string, 0, len(t.Paths)+1)
		patterns = append(patterns, path.Clean(t.BuildContext())+"/**")
		patterns = append(patterns, t.Paths...)

		for _, pattern := range patterns {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("tool %q: invalid path pattern %q", t.Name, pattern)
			}
			for _, p := range normalized {
				ok, err := doublestar.Match(pattern, p)
				if err != nil {
					return nil, fmt.Errorf("tool %q: pattern %q: %w", t.Name, pattern, err)
				}
				if ok {
					hit[t.Name] = true
					break
				}
			}
			if hit[t.Name] {
				break
			}
		}
	}

	names := make([]string, 0, len(hit))
	for name := range hit {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadChangedFile parses a changed-file list: one path per line, blank
// lines and #-comments ignored. Used for --changed-from.
func ReadChangedFile(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
