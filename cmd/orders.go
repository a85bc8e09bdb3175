package cmd

import (
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/model"
	"github.com/bistrohq/bistroctl/internal/render"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect tenant orders",
}

var (
	ordersPage   int
	ordersLimit  int
	ordersStatus string
)

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders (paginated)",
	Example: `  bistroctl orders list
  bistroctl orders list --status pending --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		params := url.Values{}
		params.Set("page", strconv.Itoa(ordersPage))
		params.Set("limit", strconv.Itoa(ordersLimit))
		if ordersStatus != "" {
			params.Set("status", ordersStatus)
		}

		page, err := api.GetPaginated[model.Order](cmd.Context(), deps.Client, "/orders", params)
		if err != nil {
			return err
		}
		if resolveFormat(deps.Config.Format) == render.FormatJSON {
			return render.JSON(os.Stdout, page.Items)
		}
		render.Orders(os.Stdout, page.Items)
		printConversionStats(deps)
		return nil
	},
}

var ordersGetCmd = &cobra.Command{
	Use:   "get <ORDER_ID>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var order model.Order
		if err := deps.Client.Get(cmd.Context(), "/orders/"+args[0], nil, &order, nil); err != nil {
			return err
		}
		return render.JSON(os.Stdout, order)
	},
}

func init() {
	ordersListCmd.Flags().IntVar(&ordersPage, "page", 1, "page number")
	ordersListCmd.Flags().IntVar(&ordersLimit, "limit", 20, "orders per page")
	ordersListCmd.Flags().StringVar(&ordersStatus, "status", "", "filter by status")
	ordersCmd.AddCommand(ordersListCmd, ordersGetCmd)
	rootCmd.AddCommand(ordersCmd)
}
