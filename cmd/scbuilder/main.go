package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scbuilder/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scbuilder",
		Short: "Build planner for EDA tool container images",
		Long: `scbuilder - build planner for EDA tool container images

scbuilder reads a tool catalog (tools.toml), computes which tool images
need rebuilding, and emits a dependency-ordered job list for the CI
matrix. Images already present in the container registry are skipped
unless a rebuild is forced.`,
		Example: `  scbuilder matrix                          # Plan from registry state
  scbuilder matrix --rebuild-all            # Force a full rebuild
  scbuilder matrix --changed-from - < diff  # Plan from changed files
  scbuilder tools list                      # Show the catalog
  scbuilder run --dry-run                   # Print the build commands`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("scbuilder v%s (%s, %s)\n",
		version.Version, version.Commit, version.Date))

	rootCmd.PersistentFlags().String("catalog", "", "Tool catalog file (default: from config, then ./tools.toml)")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default: ~/.config/scbuilder/config.toml)")

	rootCmd.AddCommand(newMatrixCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newImageCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDoctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
