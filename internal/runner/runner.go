// Package runner executes a build plan locally with docker. The external
// CI normally consumes the plan itself; the runner exists for operators
// reproducing a matrix on their own machine.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"scbuilder/internal/logging"
	"scbuilder/internal/matrix"
)

// CommandRunner abstracts process execution so tests can intercept the
// docker invocations.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, wiring through stdout/stderr.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Options configures a Runner.
type Options struct {
	// Parallelism bounds concurrent builds within one dependency wave.
	// Values below 1 mean serial execution.
	Parallelism int

	// Push uploads each image after a successful build.
	Push bool

	// DryRun prints the docker commands instead of running them.
	DryRun bool

	// Out receives dry-run output. Defaults to os.Stdout.
	Out io.Writer

	// Commands overrides process execution (tests). Defaults to ExecRunner.
	Commands CommandRunner

	// Reporter receives build events. May be nil.
	Reporter *logging.Reporter
}

// Runner executes plans wave by wave.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Commands == nil {
		opts.Commands = ExecRunner{}
	}
	return &Runner{opts: opts}
}

// Execute builds every job in the plan, never starting a job before its
// in-run dependencies have finished. Jobs inside one wave run
// concurrently, bounded by Parallelism.
func (r *Runner) Execute(ctx context.Context, plan *matrix.Plan) error {
	reporter := r.opts.Reporter.WithRun(plan.RunID)

	pending := plan.Jobs()
	done := make(map[string]bool, len(pending))

	for len(pending) > 0 {
		wave := nextWave(pending, done)
		if len(wave) == 0 {
			// Unsatisfiable depends-on set; Generate never emits this.
			var stuck []string
			for _, j := range pending {
				stuck = append(stuck, j.Tool)
			}
			return fmt.Errorf("no runnable job among %v", stuck)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Parallelism)
		for _, job := range wave {
			g.Go(func() error {
				return r.buildJob(gctx, reporter, job)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, job := range wave {
			done[job.Tool] = true
		}
		pending = remaining(pending, done)
	}

	reporter.Infof("plan complete")
	return nil
}

// nextWave returns the pending jobs whose in-run dependencies are done.
func nextWave(pending []matrix.Job, done map[string]bool) []matrix.Job {
	var wave []matrix.Job
	for _, j := range pending {
		ready := true
		for _, dep := range j.DependsOn {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, j)
		}
	}
	return wave
}

func remaining(pending []matrix.Job, done map[string]bool) []matrix.Job {
	var rest []matrix.Job
	for _, j := range pending {
		if !done[j.Tool] {
			rest = append(rest, j)
		}
	}
	return rest
}

func (r *Runner) buildJob(ctx context.Context, reporter *logging.Reporter, job matrix.Job) error {
	args := buildArgs(job)

	if r.opts.DryRun {
		fmt.Fprintf(r.opts.Out, "docker %s\n", strings.Join(args, " "))
		if r.opts.Push {
			fmt.Fprintf(r.opts.Out, "docker push %s\n", job.Image)
		}
		return nil
	}

	reporter.Tool(job.Tool, "building %s", job.Image)
	if err := r.opts.Commands.Run(ctx, "docker", args...); err != nil {
		reporter.Errorf("build of %s failed: %v", job.Tool, err)
		return fmt.Errorf("build of %s failed: %w", job.Tool, err)
	}

	if r.opts.Push {
		reporter.Tool(job.Tool, "pushing %s", job.Image)
		if err := r.opts.Commands.Run(ctx, "docker", "push", job.Image); err != nil {
			reporter.Errorf("push of %s failed: %v", job.Tool, err)
			return fmt.Errorf("push of %s failed: %w", job.Tool, err)
		}
	}

	reporter.Tool(job.Tool, "built %s", job.Image)
	return nil
}

// buildArgs assembles the docker build command line for a job. Tool
// metadata and dependency image references are passed as build args so
// the Dockerfiles stay catalog-driven.
func buildArgs(job matrix.Job) []string {
	args := []string{"build", "-t", job.Image}

	args = append(args,
		"--build-arg", "SC_VERSION="+job.Version,
	)

	keys := make([]string, 0, len(job.BuildArgs))
	for k := range job.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+job.BuildArgs[k])
	}

	deps := make([]string, 0, len(job.DependencyImages))
	for dep := range job.DependencyImages {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	for _, dep := range deps {
		argName := "SC_IMAGE_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(dep))
		args = append(args, "--build-arg", argName+"="+job.DependencyImages[dep])
	}

	return append(args, job.Context)
}
