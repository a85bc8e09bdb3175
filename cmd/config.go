package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/config"
	"github.com/bistrohq/bistroctl/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bistroctl configuration",
	Long:  `Read and write bistroctl configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		fmt.Printf("✓ Created %s\n", path)
		fmt.Println("  Edit it and set your tenant slug to get started.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.Tenant, globalFlags.BaseURL)
		if err != nil {
			return err
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			return render.JSON(os.Stdout, map[string]any{
				"base_url":       cfg.BaseURL,
				"tenant":         cfg.Tenant,
				"format":         cfg.Format,
				"timeout":        cfg.Timeout.String(),
				"report_timeout": cfg.ReportTimeout.String(),
				"rate":           cfg.Rate,
				"db_path":        cfg.DBPath,
				"download_dir":   cfg.DownloadDir,
				"config_path":    cfg.ConfigPath,
			})
		}

		fmt.Printf("base_url        %s\n", cfg.BaseURL)
		fmt.Printf("tenant          %s\n", orUnset(cfg.Tenant))
		fmt.Printf("format          %s\n", cfg.Format)
		fmt.Printf("timeout         %s\n", cfg.Timeout)
		fmt.Printf("report_timeout  %s\n", cfg.ReportTimeout)
		fmt.Printf("rate            %.1f\n", cfg.Rate)
		fmt.Printf("db_path         %s\n", cfg.DBPath)
		fmt.Printf("download_dir    %s\n", cfg.DownloadDir)
		fmt.Printf("loaded_from     %s\n", src)
		return nil
	},
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
