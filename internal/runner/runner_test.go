package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"scbuilder/internal/matrix"
)

// fakeCommands records invocations and optionally fails on a tool.
type fakeCommands struct {
	mu       sync.Mutex
	calls    [][]string
	failWhen func(args []string) bool
}

func (f *fakeCommands) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := append([]string{name}, args...)
	f.calls = append(f.calls, full)
	if f.failWhen != nil && f.failWhen(full) {
		return fmt.Errorf("boom")
	}
	return nil
}

// builtOrder extracts the image targets of docker build calls in order.
func (f *fakeCommands) builtOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var order []string
	for _, call := range f.calls {
		if len(call) > 3 && call[1] == "build" {
			order = append(order, call[3])
		}
	}
	return order
}

func testPlan() *matrix.Plan {
	return &matrix.Plan{
		RunID: "run-1",
		Ready: []matrix.Job{
			{Tool: "klayout", Image: "reg.io/sc_tool_klayout:1-a", Context: "docker/klayout"},
			{Tool: "surelog", Image: "reg.io/sc_tool_surelog:1-b", Context: "docker/surelog"},
		},
		Deferred: []matrix.Job{
			{
				Tool: "yosys", Image: "reg.io/sc_tool_yosys:1-c", Context: "docker/yosys",
				DependsOn:        []string{"surelog"},
				DependencyImages: map[string]string{"surelog": "reg.io/sc_tool_surelog:1-b"},
			},
			{
				Tool: "openroad", Image: "reg.io/sc_tool_openroad:1-d", Context: "docker/openroad",
				DependsOn:        []string{"yosys"},
				DependencyImages: map[string]string{"yosys": "reg.io/sc_tool_yosys:1-c"},
			},
		},
	}
}

func TestExecuteWaveOrder(t *testing.T) {
	cmds := &fakeCommands{}
	r := New(Options{Parallelism: 4, Commands: cmds})

	if err := r.Execute(context.Background(), testPlan()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	order := cmds.builtOrder()
	if len(order) != 4 {
		t.Fatalf("expected 4 builds, got %v", order)
	}

	pos := make(map[string]int)
	for i, image := range order {
		pos[image] = i
	}
	if pos["reg.io/sc_tool_yosys:1-c"] < pos["reg.io/sc_tool_surelog:1-b"] {
		t.Errorf("yosys built before surelog: %v", order)
	}
	if pos["reg.io/sc_tool_openroad:1-d"] < pos["reg.io/sc_tool_yosys:1-c"] {
		t.Errorf("openroad built before yosys: %v", order)
	}
}

func TestExecuteFailureStopsDependents(t *testing.T) {
	cmds := &fakeCommands{
		failWhen: func(args []string) bool {
			return len(args) > 3 && strings.Contains(args[3], "surelog")
		},
	}
	r := New(Options{Parallelism: 1, Commands: cmds})

	err := r.Execute(context.Background(), testPlan())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "surelog") {
		t.Errorf("error = %v", err)
	}

	for _, image := range cmds.builtOrder() {
		if strings.Contains(image, "yosys") || strings.Contains(image, "openroad") {
			t.Errorf("dependent built after failed dependency: %v", image)
		}
	}
}

func TestExecutePush(t *testing.T) {
	cmds := &fakeCommands{}
	r := New(Options{Parallelism: 1, Push: true, Commands: cmds})

	plan := &matrix.Plan{
		RunID: "run-1",
		Ready: []matrix.Job{{Tool: "yosys", Image: "reg.io/sc_tool_yosys:1-a", Context: "docker/yosys"}},
	}
	if err := r.Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	var pushed bool
	for _, call := range cmds.calls {
		if len(call) == 3 && call[1] == "push" && call[2] == "reg.io/sc_tool_yosys:1-a" {
			pushed = true
		}
	}
	if !pushed {
		t.Errorf("image not pushed: %v", cmds.calls)
	}
}

func TestExecuteDryRun(t *testing.T) {
	cmds := &fakeCommands{}
	var out strings.Builder
	r := New(Options{DryRun: true, Push: true, Commands: cmds, Out: &out})

	if err := r.Execute(context.Background(), testPlan()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(cmds.calls) != 0 {
		t.Errorf("dry run invoked docker: %v", cmds.calls)
	}
	if !strings.Contains(out.String(), "docker build -t reg.io/sc_tool_surelog:1-b") {
		t.Errorf("dry run output missing build command:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "docker push reg.io/sc_tool_surelog:1-b") {
		t.Errorf("dry run output missing push command:\n%s", out.String())
	}
}

func TestBuildArgs(t *testing.T) {
	job := matrix.Job{
		Tool:    "yosys",
		Version: "0.38",
		Image:   "reg.io/sc_tool_yosys:0.38-a",
		Context: "docker/yosys",
		BuildArgs: map[string]string{
			"JOBS": "4",
		},
		DependencyImages: map[string]string{
			"surelog": "reg.io/sc_tool_surelog:1.84-b",
		},
	}

	got := strings.Join(buildArgs(job), " ")
	want := "build -t reg.io/sc_tool_yosys:0.38-a " +
		"--build-arg SC_VERSION=0.38 " +
		"--build-arg JOBS=4 " +
		"--build-arg SC_IMAGE_SURELOG=reg.io/sc_tool_surelog:1.84-b " +
		"docker/yosys"
	if got != want {
		t.Errorf("buildArgs() =\n  %s\nwant\n  %s", got, want)
	}
}
