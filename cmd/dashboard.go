package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/render"
)

var dashboardPeriod string

// dashboardCmd loads every widget concurrently. A widget failure is shown
// inline; the rest of the dashboard still renders.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Load the tenant dashboard (all widgets)",
	Example: `  bistroctl dashboard
  bistroctl dashboard --period 7d --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		store := deps.Dashboard
		if dashboardPeriod != "" {
			// Load the trend for the requested period, everything else default.
			_ = store.LoadSalesTrend(cmd.Context(), dashboardPeriod)
			_ = store.LoadOverview(cmd.Context())
			_ = store.LoadTopItems(cmd.Context(), 10)
			_ = store.LoadCategories(cmd.Context())
			_ = store.LoadRecentOrders(cmd.Context(), 10)
		} else {
			_ = store.LoadAll(cmd.Context())
		}

		if err := render.Dashboard(os.Stdout, store, resolveFormat(deps.Config.Format)); err != nil {
			return err
		}
		printConversionStats(deps)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardPeriod, "period", "",
		"sales trend period: 7d|30d|90d (default: 30d)")
	rootCmd.AddCommand(dashboardCmd)
}
