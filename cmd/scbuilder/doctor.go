package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"scbuilder/internal/catalog"
	"scbuilder/internal/config"
)

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check installation and dependencies",
		Long: `Verify that everything needed to build and publish tool images is in place.

Checks:
  - Required binaries (docker, git)
  - Configuration file
  - Tool catalog
  - Registry reachability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

func runDoctor(cmd *cobra.Command) error {
	var results []checkResult

	results = append(results, checkBinary("docker", true, "required to build and push images"))
	results = append(results, checkBinary("git", false, "used to resolve changed paths"))

	results = append(results, checkConfig(cmd))

	cfg, err := loadConfig(cmd)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	results = append(results, checkCatalog(cmd, cfg))
	results = append(results, checkRegistry(cfg))

	printDoctorResults(results)

	hasError := false
	for _, r := range results {
		if r.status == "error" {
			hasError = true
			break
		}
	}

	if hasError {
		fmt.Println("\nSome checks failed.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println("\nAll checks passed!")
	return nil
}

func checkBinary(name string, required bool, description string) checkResult {
	path, err := exec.LookPath(name)
	if err != nil {
		status := "warn"
		if required {
			status = "error"
		}
		return checkResult{
			name:    name,
			status:  status,
			message: fmt.Sprintf("not found - %s", description),
		}
	}

	version := getBinaryVersion(name)
	msg := fmt.Sprintf("found at %s", path)
	if version != "" {
		msg = fmt.Sprintf("%s (%s)", version, path)
	}

	return checkResult{
		name:    name,
		status:  "ok",
		message: msg,
	}
}

func getBinaryVersion(name string) string {
	var cmd *exec.Cmd
	switch name {
	case "docker":
		cmd = exec.Command(name, "--version")
	case "git":
		cmd = exec.Command(name, "--version")
	default:
		return ""
	}

	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	version := strings.TrimSpace(strings.Split(string(output), "\n")[0])
	return version
}

func checkConfig(cmd *cobra.Command) checkResult {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{
			name:    "config",
			status:  "warn",
			message: fmt.Sprintf("%s not found (defaults in use, run 'scbuilder config init')", path),
		}
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return checkResult{
			name:    "config",
			status:  "error",
			message: fmt.Sprintf("cannot load %s: %v", path, err),
		}
	}
	if err := cfg.Validate(); err != nil {
		return checkResult{
			name:    "config",
			status:  "error",
			message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	return checkResult{
		name:    "config",
		status:  "ok",
		message: path,
	}
}

func checkCatalog(cmd *cobra.Command, cfg *config.Config) checkResult {
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		path = cfg.Catalog.Path
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{
			name:    "catalog",
			status:  "error",
			message: fmt.Sprintf("%s not found", path),
		}
	}

	cat, err := catalog.Load(path)
	if err != nil {
		return checkResult{
			name:    "catalog",
			status:  "error",
			message: fmt.Sprintf("cannot load %s: %v", path, err),
		}
	}

	return checkResult{
		name:    "catalog",
		status:  "ok",
		message: fmt.Sprintf("%s (%d tools)", path, len(cat.Tools)),
	}
}

func checkRegistry(cfg *config.Config) checkResult {
	host := cfg.Registry.Prefix
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}

	scheme := "https"
	if cfg.Registry.PlainHTTP {
		scheme = "http"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s://%s/v2/", scheme, host), nil)
	if err != nil {
		return checkResult{
			name:    "registry",
			status:  "error",
			message: fmt.Sprintf("invalid registry host %q: %v", host, err),
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return checkResult{
			name:    "registry",
			status:  "warn",
			message: fmt.Sprintf("%s unreachable: %v", host, err),
		}
	}
	defer resp.Body.Close()

	// 200 and 401 both mean the registry API answered.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
		return checkResult{
			name:    "registry",
			status:  "warn",
			message: fmt.Sprintf("%s returned %s for /v2/", host, resp.Status),
		}
	}

	return checkResult{
		name:    "registry",
		status:  "ok",
		message: host,
	}
}

func printDoctorResults(results []checkResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("CHECK", "STATUS", "DETAILS")

	for _, r := range results {
		status := r.status
		switch r.status {
		case "ok":
			status = "✓ ok"
		case "warn":
			status = "⚠ warn"
		case "error":
			status = "✗ error"
		}

		_ = table.Append(r.name, status, r.message)
	}

	_ = table.Render()
}
