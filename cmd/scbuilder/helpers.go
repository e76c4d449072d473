package main

import (
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"scbuilder/internal/catalog"
	"scbuilder/internal/config"
	"scbuilder/internal/oci"
)

// isTTY reports whether stdout is connected to a terminal.
var isTTY = sync.OnceValue(func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
})

// color wraps text in ANSI color codes when stdout is a TTY.
// Returns plain text otherwise.
func color(code, text string) string {
	if !isTTY() {
		return text
	}
	return code + text + "\033[0m"
}

// loadConfig reads the app config, honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// loadCatalog reads the tool catalog, honoring --catalog over the config.
func loadCatalog(cmd *cobra.Command, cfg *config.Config) (*catalog.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		path = catalog.DefaultFile
	}
	return catalog.Load(path)
}

// newChecker builds a registry checker from config.
func newChecker(cfg *config.Config) *oci.Checker {
	opts := []oci.CheckerOption{
		oci.WithParallelism(cfg.Registry.Parallelism),
	}
	if cfg.Registry.TimeoutSeconds > 0 {
		opts = append(opts, oci.WithTimeout(time.Duration(cfg.Registry.TimeoutSeconds)*time.Second))
	}
	if cfg.Registry.PlainHTTP {
		opts = append(opts, oci.WithPlainHTTP())
	}
	return oci.NewChecker(opts...)
}
