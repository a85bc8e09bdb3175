package cmd

import (
	"fmt"

	"github.com/bistrohq/bistroctl/internal/app"
	"github.com/bistrohq/bistroctl/internal/render"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// printConversionStats shows compatibility activity after a command when
// --verbose is set.
func printConversionStats(deps *app.Deps) {
	if !globalFlags.Verbose {
		return
	}
	stats := deps.Compat.ConversionStats()
	if len(stats) == 0 {
		return
	}
	fmt.Println("\nlegacy conversions this run:")
	for key, count := range stats {
		fmt.Printf("  %-60s %d\n", key, count)
	}
}
