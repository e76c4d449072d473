// Package oci computes image references for catalog tools and checks a
// container registry for existing tags.
package oci

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"scbuilder/internal/catalog"
)

// RepositoryPrefix is prepended to tool repositories when the config does
// not override it.
const RepositoryPrefix = "ghcr.io/siliconcompiler/sc_tool"

// fingerprintLen is the number of hex digits of the content fingerprint
// included in the tag.
const fingerprintLen = 10

// Repository returns the registry repository for a tool,
// e.g. "ghcr.io/siliconcompiler/sc_tool_yosys".
func Repository(prefix, tool string) string {
	if prefix == "" {
		prefix = RepositoryPrefix
	}
	return prefix + "_" + tool
}

// Tag returns the image tag for a tool: the upstream version plus a short
// fingerprint of the inputs that go into the build. The fingerprint folds
// in the tags of all dependencies, so rebuilding a base tool re-tags every
// image built on top of it.
func Tag(c *catalog.Catalog, name string) (string, error) {
	return tag(c, name, make(map[string]bool))
}

func tag(c *catalog.Catalog, name string, visiting map[string]bool) (string, error) {
	t := c.Get(name)
	if t == nil {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if visiting[name] {
		return "", fmt.Errorf("dependency cycle through %q", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	deps := append([]string(nil), t.Dependencies...)
	sort.Strings(deps)

	var b strings.Builder
	fmt.Fprintf(&b, "version=%s\ncommit=%s\nurl=%s\n", t.Version, t.Commit, t.URL)
	for _, dep := range deps {
		depTag, err := tag(c, dep, visiting)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "dep=%s:%s\n", dep, depTag)
	}

	sum := sha256.Sum256([]byte(b.String()))
	fp := fmt.Sprintf("%x", sum)[:fingerprintLen]

	return sanitizeTag(t.Version) + "-" + fp, nil
}

// sanitizeTag rewrites a version string into a valid OCI tag.
// Tags may contain [a-zA-Z0-9_.-] and must not start with '.' or '-'.
func sanitizeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	for len(s) > 0 && (s[0] == '.' || s[0] == '-') {
		s = s[1:]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// Reference returns the full image reference repository:tag for a tool.
func Reference(c *catalog.Catalog, prefix, name string) (string, error) {
	t, err := Tag(c, name)
	if err != nil {
		return "", err
	}
	return Repository(prefix, name) + ":" + t, nil
}
