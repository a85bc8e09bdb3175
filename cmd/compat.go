package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/render"
)

// compatCmd surfaces the compatibility manager's observability interface.
// Stats accumulate per process run, so these are most useful after a
// --verbose session or in scripted sequences.
var compatCmd = &cobra.Command{
	Use:   "compat",
	Short: "Inspect legacy-response conversion activity",
	Long: `Inspect legacy-response conversion activity.

Counters and errors accumulate in-process, so a standalone invocation starts
empty. Run other commands with --verbose to see the conversions they caused,
or call these subcommands from the same scripted sequence.`,
}

var compatStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-endpoint conversion counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		stats := deps.Compat.ConversionStats()
		if len(stats) == 0 {
			fmt.Println("no conversions recorded")
			return nil
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-60s %d\n", k, stats[k])
		}
		return nil
	},
}

var compatErrorsLimit int

var compatErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Print recent conversion errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		errs := deps.Compat.RecentErrors(compatErrorsLimit)
		if len(errs) == 0 {
			fmt.Println("no conversion errors recorded")
			return nil
		}
		for _, e := range errs {
			fmt.Printf("%s  %s  %s\n", e.Time.Format("15:04:05"), e.SourceURL, e.Message)
		}
		return nil
	},
}

var compatReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the aggregated compatibility report",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		rep := deps.Compat.GenerateReport()
		if err := render.CompatReport(os.Stdout, rep, resolveFormat(deps.Config.Format)); err != nil {
			return err
		}
		if deps.Compat.NeedsCleanup() {
			fmt.Println("note: tracked state is large; run `bistroctl compat clear`")
		}
		return nil
	},
}

var compatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear conversion counters and error logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		deps.Compat.ClearLogs()
		fmt.Println("✓ Cleared")
		return nil
	},
}

func init() {
	compatErrorsCmd.Flags().IntVar(&compatErrorsLimit, "limit", 20, "max errors to print")
	compatCmd.AddCommand(compatStatsCmd, compatErrorsCmd, compatReportCmd, compatClearCmd)
	rootCmd.AddCommand(compatCmd)
}
