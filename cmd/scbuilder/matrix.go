package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"scbuilder/internal/logging"
	"scbuilder/internal/matrix"
)

func newMatrixCmd() *cobra.Command {
	var (
		rebuildAll    bool
		tools         []string
		changedFiles  []string
		changedFrom   string
		assumeMissing bool
		output        string
	)

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Generate the build matrix",
		Long: `Generate a dependency-ordered build plan for the CI matrix.

The plan is split into "ready" jobs (all dependency images already exist)
and "deferred" jobs (waiting for other jobs in the same run). Without
selection flags, tools whose image tag is missing from the registry are
selected; selection always propagates to dependent tools.`,
		Example: `  scbuilder matrix
  scbuilder matrix --rebuild-all
  scbuilder matrix --tool yosys --tool openroad
  git diff --name-only main | scbuilder matrix --changed-from -
  scbuilder matrix --assume-missing --output plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cat, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			if changedFrom != "" {
				paths, err := readChangedFrom(changedFrom)
				if err != nil {
					return err
				}
				changedFiles = append(changedFiles, paths...)
			}

			dispatcher, err := logging.NewDispatcherFromConfig(
				cfg.Logging.Receivers, cfg.Logging.Attributes, "")
			if err != nil {
				return err
			}
			defer func() { _ = dispatcher.Close() }()

			plan, err := matrix.Generate(cmd.Context(), cat, newChecker(cfg), matrix.Options{
				RebuildAll:    rebuildAll,
				Tools:         tools,
				ChangedFiles:  changedFiles,
				AssumeMissing: assumeMissing,
				Prefix:        cfg.Registry.Prefix,
			})
			if err != nil {
				return err
			}

			reporter := dispatcher.NewReporter("matrix").WithRun(plan.RunID)
			for _, job := range plan.Jobs() {
				reporter.Tool(job.Tool, "selected: %s", job.Reason)
			}
			reporter.Infof("plan: %d ready, %d deferred, %d skipped",
				len(plan.Ready), len(plan.Deferred), len(plan.Skipped))

			return writePlan(plan, output)
		},
	}

	cmd.Flags().BoolVar(&rebuildAll, "rebuild-all", false, "Select every tool regardless of registry state")
	cmd.Flags().StringArrayVar(&tools, "tool", nil, "Select a tool by name (repeatable)")
	cmd.Flags().StringArrayVar(&changedFiles, "changed-file", nil, "Select tools touching this changed path (repeatable)")
	cmd.Flags().StringVar(&changedFrom, "changed-from", "", "File with changed paths, one per line ('-' for stdin)")
	cmd.Flags().BoolVar(&assumeMissing, "assume-missing", false, "Skip the registry query; treat every image as absent")
	cmd.Flags().StringVar(&output, "output", "", "Write the plan to a file instead of stdout")

	return cmd
}

func readChangedFrom(path string) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read changed files: %w", err)
	}
	return matrix.ReadChangedFile(data), nil
}

func writePlan(plan *matrix.Plan, output string) error {
	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(plan)
}
