// Package catalog loads and validates the EDA tool catalog.
// The catalog is a TOML file describing every third-party tool image
// scbuilder knows how to build: where the source comes from, which commit
// is pinned, and which other tool images the build depends on.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the catalog filename looked up in the working directory
// when no explicit path is configured.
const DefaultFile = "tools.toml"

// Tool describes one third-party build target.
type Tool struct {
	// Name is the unique tool identifier (e.g. "yosys", "openroad").
	Name string `toml:"name"`

	// Version is the upstream release the image is built from.
	Version string `toml:"version"`

	// URL is the git repository the tool sources are fetched from.
	URL string `toml:"url"`

	// Commit is the pinned git commit (tag or sha).
	Commit string `toml:"commit"`

	// Dependencies lists names of other catalog tools whose images
	// must exist before this tool can be built.
	Dependencies []string `toml:"dependencies"`

	// Context is the docker build context directory, relative to the
	// repository root. Defaults to docker/<name>.
	Context string `toml:"context"`

	// Paths are doublestar glob patterns matched against changed file
	// paths to decide whether the tool needs a rebuild. The build
	// context is always considered, so Paths only lists extras such as
	// shared install scripts.
	Paths []string `toml:"paths"`

	// BuildArgs are extra --build-arg values passed to docker build.
	BuildArgs map[string]string `toml:"build_args"`
}

// BuildContext returns the docker build context for the tool,
// falling back to docker/<name> when unset.
func (t *Tool) BuildContext() string {
	if t.Context != "" {
		return t.Context
	}
	return "docker/" + t.Name
}

// Catalog is the parsed tool catalog.
type Catalog struct {
	Tools []Tool `toml:"tool"`

	byName map[string]*Tool
}

// Load reads and validates a catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog TOML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c.byName = make(map[string]*Tool, len(c.Tools))
	for i := range c.Tools {
		c.byName[c.Tools[i].Name] = &c.Tools[i]
	}

	return &c, nil
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func (c *Catalog) validate() error {
	if len(c.Tools) == 0 {
		return fmt.Errorf("no [[tool]] entries")
	}

	seen := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool[%d]: name cannot be empty", i)
		}
		if !nameRe.MatchString(t.Name) {
			return fmt.Errorf("tool %q: name must match %s", t.Name, nameRe)
		}
		if seen[t.Name] {
			return fmt.Errorf("tool %q: declared twice", t.Name)
		}
		seen[t.Name] = true

		if t.Version == "" {
			return fmt.Errorf("tool %q: version cannot be empty", t.Name)
		}
		if t.URL == "" {
			return fmt.Errorf("tool %q: url cannot be empty", t.Name)
		}
		if t.Commit == "" {
			return fmt.Errorf("tool %q: commit cannot be empty", t.Name)
		}
		if strings.Contains(t.Context, "..") {
			return fmt.Errorf("tool %q: context contains traversal sequence: %q", t.Name, t.Context)
		}
	}

	// Dependencies must refer to declared tools. Self-dependencies are
	// the degenerate cycle and rejected here; longer cycles are the
	// matrix generator's job.
	for _, t := range c.Tools {
		depSeen := make(map[string]bool, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			if dep == t.Name {
				return fmt.Errorf("tool %q: depends on itself", t.Name)
			}
			if !seen[dep] {
				return fmt.Errorf("tool %q: unknown dependency %q", t.Name, dep)
			}
			if depSeen[dep] {
				return fmt.Errorf("tool %q: duplicate dependency %q", t.Name, dep)
			}
			depSeen[dep] = true
		}
	}

	return nil
}

// Get returns the tool with the given name, or nil.
func (c *Catalog) Get(name string) *Tool {
	return c.byName[name]
}

// Names returns all tool names in lexicographic order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Tools))
	for _, t := range c.Tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Dependents returns, for every tool, the set of tools that depend on it
// directly. The returned map is keyed by tool name.
func (c *Catalog) Dependents() map[string][]string {
	rev := make(map[string][]string, len(c.Tools))
	for _, t := range c.Tools {
		for _, dep := range t.Dependencies {
			rev[dep] = append(rev[dep], t.Name)
		}
	}
	for _, names := range rev {
		sort.Strings(names)
	}
	return rev
}
