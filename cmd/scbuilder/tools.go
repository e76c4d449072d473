package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"scbuilder/internal/catalog"
	"scbuilder/internal/config"
	"scbuilder/internal/oci"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool catalog",
		Long: `Inspect tools declared in the catalog.

Shows tool versions, pinned commits, dependency relationships, and
whether the corresponding image tag exists in the registry.`,
		Example: `  scbuilder tools list               # List catalog tools
  scbuilder tools info yosys         # Show details for yosys
  scbuilder tools check              # Verify catalog + registry state`,
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInfoCmd())
	cmd.AddCommand(newToolsCheckCmd())

	return cmd
}

// ToolInfo represents tool information for JSON output
type ToolInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	URL          string            `json:"url"`
	Commit       string            `json:"commit"`
	Context      string            `json:"context"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Dependents   []string          `json:"dependents,omitempty"`
	Paths        []string          `json:"paths,omitempty"`
	BuildArgs    map[string]string `json:"build_args,omitempty"`
	Image        string            `json:"image,omitempty"`
}

func buildToolInfo(c *catalog.Catalog, prefix string, t *catalog.Tool) ToolInfo {
	info := ToolInfo{
		Name:         t.Name,
		Version:      t.Version,
		URL:          t.URL,
		Commit:       t.Commit,
		Context:      t.BuildContext(),
		Dependencies: t.Dependencies,
		Dependents:   c.Dependents()[t.Name],
		Paths:        t.Paths,
		BuildArgs:    t.BuildArgs,
	}
	if ref, err := oci.Reference(c, prefix, t.Name); err == nil {
		info.Image = ref
	}
	return info
}

func newToolsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all catalog tools",
		Example: `  scbuilder tools list
  scbuilder tools list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			var infos []ToolInfo
			for _, name := range c.Names() {
				infos = append(infos, buildToolInfo(c, cfg.Registry.Prefix, c.Get(name)))
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(infos)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("NAME", "VERSION", "COMMIT", "DEPENDS ON")

			for _, info := range infos {
				_ = table.Append(info.Name, info.Version, info.Commit,
					strings.Join(info.Dependencies, ", "))
			}

			return table.Render()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func newToolsInfoCmd() *cobra.Command {
	var (
		showAll    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "info [tool-name]",
		Short: "Show detailed tool information",
		Example: `  scbuilder tools info yosys
  scbuilder tools info --all
  scbuilder tools info --all --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			var names []string
			if showAll {
				names = c.Names()
			} else if len(args) > 0 {
				if c.Get(args[0]) == nil {
					return fmt.Errorf("unknown tool: %s", args[0])
				}
				names = []string{args[0]}
			} else {
				return fmt.Errorf("specify a tool name or use --all")
			}

			var infos []ToolInfo
			for _, name := range names {
				infos = append(infos, buildToolInfo(c, cfg.Registry.Prefix, c.Get(name)))
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(infos)
			}

			for i, info := range infos {
				if i > 0 {
					fmt.Println()
					fmt.Println(strings.Repeat("-", 60))
					fmt.Println()
				}
				printToolInfo(info)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "Show info for all tools")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func printToolInfo(info ToolInfo) {
	fmt.Printf("Tool: %s\n", info.Name)
	fmt.Printf("Version: %s\n", info.Version)
	fmt.Printf("Source: %s @ %s\n", info.URL, info.Commit)
	fmt.Printf("Context: %s\n", info.Context)

	if info.Image != "" {
		fmt.Printf("Image: %s\n", info.Image)
	}

	if len(info.Dependencies) > 0 {
		fmt.Println()
		fmt.Println("Depends on:")
		for _, dep := range info.Dependencies {
			fmt.Printf("  %s\n", dep)
		}
	}

	if len(info.Dependents) > 0 {
		fmt.Println()
		fmt.Println("Needed by:")
		for _, dep := range info.Dependents {
			fmt.Printf("  %s\n", dep)
		}
	}

	if len(info.Paths) > 0 {
		fmt.Println()
		fmt.Println("Extra build inputs:")
		for _, p := range info.Paths {
			fmt.Printf("  %s\n", p)
		}
	}

	if len(info.BuildArgs) > 0 {
		fmt.Println()
		fmt.Println("Build args:")
		for k, v := range info.BuildArgs {
			fmt.Printf("  %s=%s\n", k, v)
		}
	}
}

func newToolsCheckCmd() *cobra.Command {
	var (
		jsonOutput   bool
		skipRegistry bool
	)

	cmd := &cobra.Command{
		Use:   "check [tool-names...]",
		Short: "Verify catalog entries and registry state",
		Long:  "Validate the catalog and report which image tags exist in the registry",
		Example: `  scbuilder tools check
  scbuilder tools check yosys openroad
  scbuilder tools check --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			names := c.Names()
			if len(args) > 0 {
				for _, name := range args {
					if c.Get(name) == nil {
						return fmt.Errorf("unknown tool: %s", name)
					}
				}
				names = args
			}

			exists, err := checkImages(cmd.Context(), c, cfg, names, skipRegistry)
			if err != nil {
				return err
			}

			type CheckResult struct {
				Name        string `json:"name"`
				Image       string `json:"image"`
				ImageExists bool   `json:"image_exists"`
			}

			var results []CheckResult
			present := 0
			for _, name := range names {
				ref, err := oci.Reference(c, cfg.Registry.Prefix, name)
				if err != nil {
					return err
				}
				r := CheckResult{Name: name, Image: ref, ImageExists: exists[ref]}
				if r.ImageExists {
					present++
				}
				results = append(results, r)
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(results)
			}

			fmt.Println("Checking tools...")
			fmt.Println()

			for _, r := range results {
				if r.ImageExists {
					fmt.Printf("%s %s (%s)\n", color("\033[32m", "✓"), r.Name, r.Image)
				} else {
					fmt.Printf("%s %s (image missing: %s)\n", color("\033[31m", "✗"), r.Name, r.Image)
				}
			}

			fmt.Println()
			fmt.Printf("Summary: %d/%d images present\n", present, len(results))

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&skipRegistry, "skip-registry", false, "Validate the catalog only, without registry queries")

	return cmd
}

func checkImages(ctx context.Context, c *catalog.Catalog, cfg *config.Config, names []string, skip bool) (map[string]bool, error) {
	exists := make(map[string]bool, len(names))
	if skip {
		return exists, nil
	}

	refs := make([]string, 0, len(names))
	for _, name := range names {
		ref, err := oci.Reference(c, cfg.Registry.Prefix, name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	return newChecker(cfg).CheckAll(ctx, refs)
}
