package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scbuilder/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `View and manage scbuilder configuration.

Configuration file location: ~/.config/scbuilder/config.toml
(or $XDG_CONFIG_HOME/scbuilder/config.toml)`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("Config file: %s\n\n", config.ConfigPath())

			fmt.Println("[registry]")
			fmt.Printf("  prefix = %s\n", cfg.Registry.Prefix)
			fmt.Printf("  timeout_seconds = %d\n", cfg.Registry.TimeoutSeconds)
			fmt.Printf("  parallelism = %d\n", cfg.Registry.Parallelism)
			if cfg.Registry.PlainHTTP {
				fmt.Printf("  plain_http = true\n")
			}
			fmt.Println()

			fmt.Println("[catalog]")
			fmt.Printf("  path = %s\n", cfg.Catalog.Path)
			fmt.Println()

			fmt.Println("[build]")
			fmt.Printf("  parallelism = %d\n", cfg.Build.Parallelism)
			fmt.Printf("  push = %v\n", cfg.Build.Push)
			fmt.Println()

			fmt.Println("[logging]")
			if len(cfg.Logging.Receivers) == 0 {
				fmt.Println("  receivers = (none)")
			} else {
				for i, r := range cfg.Logging.Receivers {
					fmt.Printf("  [[receivers]] #%d\n", i+1)
					fmt.Printf("    type = %s\n", r.Type)
					if r.Address != "" {
						fmt.Printf("    address = %s\n", r.Address)
					}
					if r.Endpoint != "" {
						fmt.Printf("    endpoint = %s\n", r.Endpoint)
					}
					if r.Facility != "" {
						fmt.Printf("    facility = %s\n", r.Facility)
					}
					if r.Tag != "" {
						fmt.Printf("    tag = %s\n", r.Tag)
					}
				}
			}

			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.ConfigPath())
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.ConfigPath()

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					return fmt.Errorf("config file already exists at %s\nUse --force to overwrite", configPath)
				}
			}

			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(configPath, []byte(config.GenerateDefault()), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("Created config file at %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")

	return cmd
}
