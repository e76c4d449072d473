package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"scbuilder/internal/matrix"
)

func TestNewMatrixCmd(t *testing.T) {
	cmd := newMatrixCmd()
	if cmd.Use != "matrix" {
		t.Errorf("expected Use='matrix', got %q", cmd.Use)
	}

	for _, flag := range []string{"rebuild-all", "tool", "changed-file", "changed-from", "assume-missing", "output"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestReadChangedFrom_File(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "changed.txt")
	if err := os.WriteFile(path, []byte("docker/yosys/Dockerfile\n\ntools.toml\n"), 0o644); err != nil {
		t.Fatalf("failed to write changed file: %v", err)
	}

	paths, err := readChangedFrom(path)
	if err != nil {
		t.Fatalf("readChangedFrom failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
	if paths[0] != "docker/yosys/Dockerfile" || paths[1] != "tools.toml" {
		t.Errorf("unexpected paths: %v", paths)
	}
}

func TestWritePlan_File(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "plan.json")

	plan := &matrix.Plan{
		RunID: "test-run",
		Ready: []matrix.Job{{Tool: "yosys", Image: "example/sc_tool_yosys:v1"}},
	}

	if err := writePlan(plan, path); err != nil {
		t.Fatalf("writePlan failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read plan file: %v", err)
	}

	var decoded matrix.Plan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("plan is not valid JSON: %v", err)
	}
	if decoded.RunID != "test-run" {
		t.Errorf("expected RunID 'test-run', got %q", decoded.RunID)
	}
	if len(decoded.Ready) != 1 || decoded.Ready[0].Tool != "yosys" {
		t.Errorf("unexpected ready jobs: %+v", decoded.Ready)
	}
}
