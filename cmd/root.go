// Package cmd implements the bistroctl CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/app"
	"github.com/bistrohq/bistroctl/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Tenant  string
	BaseURL string
	Format  string
	Timeout string
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `bistroctl` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "bistroctl",
	Short: "bistroctl — BistroHQ restaurant admin CLI",
	Long: `bistroctl is a command-line admin client for the BistroHQ multi-tenant
restaurant and menu management platform.

Quick start:
  bistroctl config init              # create a config.json
  bistroctl auth login -e you@restaurant.example
  bistroctl dashboard                # load the admin dashboard
  bistroctl menu list                # browse the tenant menu`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.Tenant, globalFlags.BaseURL)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		if d, err2 := time.ParseDuration(globalFlags.Timeout); err2 == nil {
			cfg.Timeout = d
		}
	}
	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Tenant, "tenant", "",
		"tenant slug (overrides env BISTRO_TENANT and config.json)")
	pf.StringVar(&globalFlags.BaseURL, "base-url", "",
		"API base URL (overrides env BISTRO_BASE_URL and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json (default: table)")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show conversion stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (tokens redacted)")
}
