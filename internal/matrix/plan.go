// Package matrix turns the tool catalog into a dependency-ordered build
// plan. The plan is split into jobs that can start immediately and jobs
// that have to wait for other jobs in the same run, which is the shape the
// external CI matrix consumes.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"scbuilder/internal/catalog"
	"scbuilder/internal/oci"
)

// ErrCycle is returned (wrapped) when the catalog declares a dependency
// cycle. This is a configuration error: the catalog must be fixed.
var ErrCycle = errors.New("dependency cycle in catalog")

// Reason records why a tool was included in the plan.
type Reason string

const (
	// ReasonRebuildAll: the operator forced a full rebuild.
	ReasonRebuildAll Reason = "rebuild-all"
	// ReasonRequested: the tool was named explicitly.
	ReasonRequested Reason = "requested"
	// ReasonChanged: a changed file matched the tool's build inputs.
	ReasonChanged Reason = "changed"
	// ReasonDependent: a dependency of the tool is being rebuilt.
	ReasonDependent Reason = "dependent"
	// ReasonMissingImage: the image tag is absent from the registry.
	ReasonMissingImage Reason = "missing-image"
)

// Job is one schedulable unit of container build work.
type Job struct {
	Tool      string            `json:"tool"`
	Version   string            `json:"version"`
	Image     string            `json:"image"`
	Context   string            `json:"context"`
	BuildArgs map[string]string `json:"build_args,omitempty"`

	// DependsOn lists jobs in the same run that must finish first.
	// Dependencies whose images already exist are not listed.
	DependsOn []string `json:"depends_on,omitempty"`

	// DependencyImages maps every direct dependency to its image
	// reference, whether it is rebuilt in this run or already present.
	DependencyImages map[string]string `json:"dependency_images,omitempty"`

	Reason Reason `json:"reason"`

	// ImageExists is the registry state observed at planning time.
	ImageExists bool `json:"image_exists"`
}

// Plan is the generated build matrix for one CI invocation.
type Plan struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// Ready jobs have no unbuilt dependencies and can start immediately.
	Ready []Job `json:"ready"`

	// Deferred jobs wait for other jobs in this run. Listed in
	// dependency order.
	Deferred []Job `json:"deferred"`

	// Skipped lists tools left out because their image already exists.
	Skipped []string `json:"skipped,omitempty"`

	// AssumedMissing is set when the registry was not consulted and
	// every candidate was treated as absent.
	AssumedMissing bool `json:"assumed_missing,omitempty"`
}

// Jobs returns all jobs in schedulable order (ready first, then deferred
// in dependency order).
func (p *Plan) Jobs() []Job {
	out := make([]Job, 0, len(p.Ready)+len(p.Deferred))
	out = append(out, p.Ready...)
	out = append(out, p.Deferred...)
	return out
}

// Options controls plan generation.
type Options struct {
	// RebuildAll selects every catalog tool regardless of registry state.
	RebuildAll bool

	// Tools selects tools by name.
	Tools []string

	// ChangedFiles selects tools whose build inputs match these paths.
	ChangedFiles []string

	// AssumeMissing skips the registry query and treats every image as
	// absent.
	AssumeMissing bool

	// Prefix overrides the image repository prefix.
	Prefix string
}

// ImageChecker reports which image references exist in the registry.
// *oci.Checker satisfies it.
type ImageChecker interface {
	CheckAll(ctx context.Context, references []string) (map[string]bool, error)
}

// Generate produces a build plan for the catalog.
func Generate(ctx context.Context, c *catalog.Catalog, checker ImageChecker, opts Options) (*Plan, error) {
	order, err := topoOrder(c)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string, len(c.Tools))
	for _, name := range order {
		ref, err := oci.Reference(c, opts.Prefix, name)
		if err != nil {
			return nil, err
		}
		refs[name] = ref
	}

	exists, err := checkExistence(ctx, checker, refs, opts)
	if err != nil {
		return nil, err
	}

	selected, err := selectTools(c, exists, opts)
	if err != nil {
		return nil, err
	}

	// Every dependency of a selected tool must either be built in this
	// run or already be present in the registry.
	for name := range selected {
		for _, dep := range c.Get(name).Dependencies {
			if _, inRun := selected[dep]; inRun {
				continue
			}
			if !exists[dep] {
				return nil, fmt.Errorf(
					"tool %q needs %q, which is neither selected for rebuild nor present in the registry",
					name, dep)
			}
		}
	}

	plan := &Plan{
		RunID:          uuid.NewString(),
		GeneratedAt:    time.Now().UTC(),
		AssumedMissing: opts.AssumeMissing,
	}

	for _, name := range order {
		reason, ok := selected[name]
		if !ok {
			if exists[name] {
				plan.Skipped = append(plan.Skipped, name)
			}
			continue
		}

		t := c.Get(name)
		job := Job{
			Tool:        name,
			Version:     t.Version,
			Image:       refs[name],
			Context:     t.BuildContext(),
			BuildArgs:   t.BuildArgs,
			Reason:      reason,
			ImageExists: exists[name],
		}
		for _, dep := range t.Dependencies {
			if job.DependencyImages == nil {
				job.DependencyImages = make(map[string]string, len(t.Dependencies))
			}
			job.DependencyImages[dep] = refs[dep]
			if _, inRun := selected[dep]; inRun {
				job.DependsOn = append(job.DependsOn, dep)
			}
		}
		sort.Strings(job.DependsOn)

		if len(job.DependsOn) == 0 {
			plan.Ready = append(plan.Ready, job)
		} else {
			plan.Deferred = append(plan.Deferred, job)
		}
	}

	sort.Strings(plan.Skipped)
	return plan, nil
}

// checkExistence resolves registry state for every tool.
func checkExistence(ctx context.Context, checker ImageChecker, refs map[string]string, opts Options) (map[string]bool, error) {
	exists := make(map[string]bool, len(refs))
	if opts.AssumeMissing {
		return exists, nil
	}
	if checker == nil {
		return nil, fmt.Errorf("no image checker configured (use AssumeMissing to skip the registry)")
	}

	all := make([]string, 0, len(refs))
	for _, ref := range refs {
		all = append(all, ref)
	}
	sort.Strings(all)

	results, err := checker.CheckAll(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("image existence check failed: %w", err)
	}

	for name, ref := range refs {
		exists[name] = results[ref]
	}
	return exists, nil
}

// selectTools decides which catalog tools are part of the run and why.
// Selection propagates to transitive dependents: an image built on a
// rebuilt base is stale even if its own inputs did not change.
func selectTools(c *catalog.Catalog, exists map[string]bool, opts Options) (map[string]Reason, error) {
	selected := make(map[string]Reason, len(c.Tools))

	switch {
	case opts.RebuildAll:
		for _, t := range c.Tools {
			selected[t.Name] = ReasonRebuildAll
		}
		return selected, nil

	case len(opts.Tools) > 0 || len(opts.ChangedFiles) > 0:
		for _, name := range opts.Tools {
			if c.Get(name) == nil {
				return nil, fmt.Errorf("unknown tool %q", name)
			}
			selected[name] = ReasonRequested
		}
		changed, err := MatchChanged(c, opts.ChangedFiles)
		if err != nil {
			return nil, err
		}
		for _, name := range changed {
			if _, ok := selected[name]; !ok {
				selected[name] = ReasonChanged
			}
		}

	default:
		// No selection input: rebuild whatever the registry is missing.
		for _, t := range c.Tools {
			if !exists[t.Name] {
				selected[t.Name] = ReasonMissingImage
			}
		}
	}

	// Propagate to dependents, breadth first.
	rev := c.Dependents()
	queue := make([]string, 0, len(selected))
	for name := range selected {
		queue = append(queue, name)
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dependent := range rev[name] {
			if _, ok := selected[dependent]; ok {
				continue
			}
			selected[dependent] = ReasonDependent
			queue = append(queue, dependent)
		}
	}

	return selected, nil
}

// topoOrder returns all catalog tools in dependency order (Kahn's
// algorithm, lexicographic tie-break) or an ErrCycle-wrapped error.
func topoOrder(c *catalog.Catalog) ([]string, error) {
	indegree := make(map[string]int, len(c.Tools))
	for _, t := range c.Tools {
		indegree[t.Name] = len(t.Dependencies)
	}
	rev := c.Dependents()

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(c.Tools))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		released := false
		for _, dependent := range rev[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(c.Tools) {
		var cycle []string
		for name, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, fmt.Errorf("%w: %v", ErrCycle, cycle)
	}

	return order, nil
}
