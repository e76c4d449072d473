package main

import (
	"github.com/spf13/cobra"

	"scbuilder/internal/logging"
	"scbuilder/internal/matrix"
	"scbuilder/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		rebuildAll    bool
		tools         []string
		assumeMissing bool
		parallel      int
		push          bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build tool images locally",
		Long: `Generate a plan and execute it locally with docker.

Jobs run wave by wave: a tool is never built before the tools it depends
on. Within a wave, builds run concurrently up to --parallel.`,
		Example: `  scbuilder run --dry-run
  scbuilder run --tool yosys
  scbuilder run --rebuild-all --parallel 4 --push`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			dispatcher, err := logging.NewDispatcherFromConfig(
				cfg.Logging.Receivers, cfg.Logging.Attributes, "")
			if err != nil {
				return err
			}
			defer func() { _ = dispatcher.Close() }()

			plan, err := matrix.Generate(cmd.Context(), c, newChecker(cfg), matrix.Options{
				RebuildAll:    rebuildAll,
				Tools:         tools,
				AssumeMissing: assumeMissing,
				Prefix:        cfg.Registry.Prefix,
			})
			if err != nil {
				return err
			}

			if parallel == 0 {
				parallel = cfg.Build.Parallelism
			}
			if !cmd.Flags().Changed("push") {
				push = cfg.Build.Push
			}

			r := runner.New(runner.Options{
				Parallelism: parallel,
				Push:        push,
				DryRun:      dryRun,
				Reporter:    dispatcher.NewReporter("runner"),
			})
			return r.Execute(cmd.Context(), plan)
		},
	}

	cmd.Flags().BoolVar(&rebuildAll, "rebuild-all", false, "Build every tool regardless of registry state")
	cmd.Flags().StringArrayVar(&tools, "tool", nil, "Build a tool by name (repeatable)")
	cmd.Flags().BoolVar(&assumeMissing, "assume-missing", false, "Skip the registry query; treat every image as absent")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Concurrent builds within a wave (default: from config)")
	cmd.Flags().BoolVar(&push, "push", false, "Push images after building")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the docker commands without running them")

	return cmd
}
