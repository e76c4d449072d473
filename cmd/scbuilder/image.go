package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scbuilder/internal/oci"
)

func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Inspect tool image references",
		Long:  "Compute image references for catalog tools and query the registry.",
	}

	cmd.AddCommand(newImageTagCmd())
	cmd.AddCommand(newImageExistsCmd())

	return cmd
}

func newImageTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <tool-name>",
		Short: "Print the computed image reference for a tool",
		Long: `Print the full image reference for a tool.

The tag folds in a fingerprint of the tool's version, commit, source URL
and the tags of all its dependencies, so bumping a base tool re-tags
every image built on top of it.`,
		Example: `  scbuilder image tag yosys`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			ref, err := oci.Reference(c, cfg.Registry.Prefix, args[0])
			if err != nil {
				return err
			}

			fmt.Println(ref)
			return nil
		},
	}
}

func newImageExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <tool-name>",
		Short: "Check whether a tool's image tag exists in the registry",
		Long:  "Exits 0 when the tag exists, 1 when it is missing.",
		Example: `  scbuilder image exists yosys && echo present
  scbuilder image exists openroad || scbuilder run --tool openroad`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := loadCatalog(cmd, cfg)
			if err != nil {
				return err
			}

			ref, err := oci.Reference(c, cfg.Registry.Prefix, args[0])
			if err != nil {
				return err
			}

			exists, err := newChecker(cfg).Exists(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%s not found in registry", ref)
			}

			fmt.Println(ref)
			return nil
		},
	}
}
