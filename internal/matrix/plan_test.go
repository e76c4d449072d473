package matrix

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"scbuilder/internal/catalog"
	"scbuilder/internal/oci"
)

// fakeChecker reports existence from a fixed tool -> exists map.
type fakeChecker struct {
	c      *catalog.Catalog
	exists map[string]bool
	err    error
	calls  int
}

func (f *fakeChecker) CheckAll(_ context.Context, references []string) (map[string]bool, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]bool, len(references))
	for name, ok := range f.exists {
		ref, err := oci.Reference(f.c, "", name)
		if err != nil {
			return nil, err
		}
		out[ref] = ok
	}
	return out, nil
}

const chainCatalog = `
[[tool]]
name = "surelog"
version = "1.84"
url = "https://example.com/surelog.git"
commit = "v1.84"

[[tool]]
name = "yosys"
version = "0.38"
url = "https://example.com/yosys.git"
commit = "yosys-0.38"
dependencies = ["surelog"]

[[tool]]
name = "openroad"
version = "2.0"
url = "https://example.com/openroad.git"
commit = "abc1234"
dependencies = ["yosys"]

[[tool]]
name = "klayout"
version = "0.28.12"
url = "https://example.com/klayout.git"
commit = "v0.28.12"
`

func mustCatalog(t *testing.T, src string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(src))
	if err != nil {
		t.Fatalf("catalog.Parse() error: %v", err)
	}
	return c
}

func jobNames(jobs []Job) []string {
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Tool)
	}
	return names
}

func TestGenerateRebuildAll(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, exists: map[string]bool{
		"surelog": true, "yosys": true, "openroad": true, "klayout": true,
	}}

	plan, err := Generate(context.Background(), c, checker, Options{RebuildAll: true})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	// Every tool appears even though every image exists.
	all := jobNames(plan.Jobs())
	if len(all) != 4 {
		t.Fatalf("expected 4 jobs, got %v", all)
	}
	if len(plan.Skipped) != 0 {
		t.Errorf("rebuild-all must not skip, got %v", plan.Skipped)
	}

	if got := jobNames(plan.Ready); !slices.Equal(got, []string{"klayout", "surelog"}) {
		t.Errorf("Ready = %v, want [klayout surelog]", got)
	}
	if got := jobNames(plan.Deferred); !slices.Equal(got, []string{"yosys", "openroad"}) {
		t.Errorf("Deferred = %v, want [yosys openroad]", got)
	}

	for _, j := range plan.Jobs() {
		if j.Reason != ReasonRebuildAll {
			t.Errorf("job %s reason = %s, want %s", j.Tool, j.Reason, ReasonRebuildAll)
		}
	}
	if plan.RunID == "" {
		t.Error("plan has no run ID")
	}
}

func TestGenerateOrderRespectsDependencies(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, exists: map[string]bool{}}

	plan, err := Generate(context.Background(), c, checker, Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	order := jobNames(plan.Jobs())
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, j := range plan.Jobs() {
		tool := c.Get(j.Tool)
		for _, dep := range tool.Dependencies {
			if pos[dep] >= pos[j.Tool] {
				t.Errorf("job %s listed before its dependency %s: %v", j.Tool, dep, order)
			}
		}
	}
}

func TestGenerateMissingImageSelection(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	// openroad's image is missing; surelog and yosys exist.
	checker := &fakeChecker{c: c, exists: map[string]bool{
		"surelog": true, "yosys": true, "openroad": false, "klayout": true,
	}}

	plan, err := Generate(context.Background(), c, checker, Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if got := jobNames(plan.Ready); !slices.Equal(got, []string{"openroad"}) {
		t.Errorf("Ready = %v, want [openroad]", got)
	}
	if len(plan.Deferred) != 0 {
		t.Errorf("Deferred = %v, want empty", jobNames(plan.Deferred))
	}
	if !slices.Equal(plan.Skipped, []string{"klayout", "surelog", "yosys"}) {
		t.Errorf("Skipped = %v", plan.Skipped)
	}
	if plan.Ready[0].Reason != ReasonMissingImage {
		t.Errorf("reason = %s, want %s", plan.Ready[0].Reason, ReasonMissingImage)
	}
	// openroad's dependency image exists, so it carries no in-run deps.
	if len(plan.Ready[0].DependsOn) != 0 {
		t.Errorf("DependsOn = %v, want empty", plan.Ready[0].DependsOn)
	}
}

func TestGenerateSelectionPropagatesToDependents(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, exists: map[string]bool{
		"surelog": true, "yosys": true, "openroad": true, "klayout": true,
	}}

	plan, err := Generate(context.Background(), c, checker, Options{Tools: []string{"surelog"}})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if got := jobNames(plan.Ready); !slices.Equal(got, []string{"surelog"}) {
		t.Errorf("Ready = %v, want [surelog]", got)
	}
	if got := jobNames(plan.Deferred); !slices.Equal(got, []string{"yosys", "openroad"}) {
		t.Errorf("Deferred = %v, want [yosys openroad]", got)
	}

	byName := make(map[string]Job)
	for _, j := range plan.Jobs() {
		byName[j.Tool] = j
	}
	if byName["surelog"].Reason != ReasonRequested {
		t.Errorf("surelog reason = %s", byName["surelog"].Reason)
	}
	if byName["yosys"].Reason != ReasonDependent {
		t.Errorf("yosys reason = %s", byName["yosys"].Reason)
	}
	if !slices.Equal(byName["openroad"].DependsOn, []string{"yosys"}) {
		t.Errorf("openroad DependsOn = %v, want [yosys]", byName["openroad"].DependsOn)
	}
	// klayout is unrelated and its image exists.
	if !slices.Equal(plan.Skipped, []string{"klayout"}) {
		t.Errorf("Skipped = %v, want [klayout]", plan.Skipped)
	}
}

func TestGenerateMissingDependencyImage(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	// yosys is requested but its dependency surelog has no image and is
	// not selected.
	checker := &fakeChecker{c: c, exists: map[string]bool{
		"surelog": false, "yosys": false, "openroad": true, "klayout": true,
	}}

	_, err := Generate(context.Background(), c, checker, Options{Tools: []string{"yosys"}})
	if err == nil {
		t.Fatal("expected error for unbuildable dependency")
	}
}

func TestGenerateUnknownTool(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, exists: map[string]bool{}}

	_, err := Generate(context.Background(), c, checker, Options{Tools: []string{"ghost"}})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestGenerateCycle(t *testing.T) {
	src := chainCatalog + `
[[tool]]
name = "cyc-a"
version = "1"
url = "https://example.com/a.git"
commit = "c"
dependencies = ["cyc-b"]

[[tool]]
name = "cyc-b"
version = "1"
url = "https://example.com/b.git"
commit = "c"
dependencies = ["cyc-a"]
`
	c := mustCatalog(t, src)
	checker := &fakeChecker{c: c, exists: map[string]bool{}}

	for range 3 {
		_, err := Generate(context.Background(), c, checker, Options{RebuildAll: true})
		if !errors.Is(err, ErrCycle) {
			t.Fatalf("Generate() error = %v, want ErrCycle", err)
		}
		// The error names the members deterministically.
		if want := "[cyc-a cyc-b]"; err != nil && !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name cycle %s", err, want)
		}
	}
}

func TestGenerateAssumeMissing(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, err: fmt.Errorf("registry down")}

	plan, err := Generate(context.Background(), c, checker, Options{AssumeMissing: true})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if checker.calls != 0 {
		t.Errorf("registry consulted %d times with AssumeMissing", checker.calls)
	}
	if !plan.AssumedMissing {
		t.Error("plan.AssumedMissing not set")
	}
	if len(plan.Jobs()) != 4 {
		t.Errorf("expected all tools selected, got %v", jobNames(plan.Jobs()))
	}
}

func TestGenerateRegistryError(t *testing.T) {
	c := mustCatalog(t, chainCatalog)
	checker := &fakeChecker{c: c, err: fmt.Errorf("registry down")}

	_, err := Generate(context.Background(), c, checker, Options{})
	if err == nil {
		t.Fatal("expected error when registry is unreachable")
	}
}
