package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/model"
	"github.com/bistrohq/bistroctl/internal/render"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Browse and update the tenant menu",
}

var (
	menuPage     int
	menuLimit    int
	menuCategory string
)

var menuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List menu items (paginated)",
	Example: `  bistroctl menu list
  bistroctl menu list --category mains --page 2 --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		params := url.Values{}
		params.Set("page", strconv.Itoa(menuPage))
		params.Set("limit", strconv.Itoa(menuLimit))
		if menuCategory != "" {
			params.Set("category", menuCategory)
		}

		page, err := api.GetPaginated[model.MenuItem](cmd.Context(), deps.Client, "/menu/items", params)
		if err != nil {
			return err
		}
		if err := render.MenuItems(os.Stdout, page.Items, page.Pagination, resolveFormat(deps.Config.Format)); err != nil {
			return err
		}
		printConversionStats(deps)
		return nil
	},
}

var menuGetCmd = &cobra.Command{
	Use:   "get <ITEM_ID>",
	Short: "Show one menu item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var item model.MenuItem
		if err := deps.Client.Get(cmd.Context(), "/menu/items/"+args[0], nil, &item, nil); err != nil {
			return err
		}
		return render.JSON(os.Stdout, item)
	},
}

var menuAvailable bool

// menuAvailabilityCmd flips availability for several items in one bulk call
// and reports partial failures instead of aborting on the first.
var menuAvailabilityCmd = &cobra.Command{
	Use:   "availability <ITEM_ID...>",
	Short: "Set availability for one or more menu items",
	Example: `  bistroctl menu availability itm_41 itm_42 --available=false`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		type update struct {
			ID        string `json:"id"`
			Available bool   `json:"available"`
		}
		updates := make([]update, 0, len(args))
		for _, id := range args {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			updates = append(updates, update{ID: id, Available: menuAvailable})
		}

		res, err := deps.Client.BulkOperation(cmd.Context(), "/menu/items/bulk-availability", updates,
			&api.RequestOptions{SuccessMessage: fmt.Sprintf("updated %d items", len(updates))})
		if err != nil {
			return err
		}
		return render.BulkResult(os.Stdout, res, resolveFormat(deps.Config.Format))
	},
}

func init() {
	menuListCmd.Flags().IntVar(&menuPage, "page", 1, "page number")
	menuListCmd.Flags().IntVar(&menuLimit, "limit", 20, "items per page")
	menuListCmd.Flags().StringVar(&menuCategory, "category", "", "filter by category")
	menuAvailabilityCmd.Flags().BoolVar(&menuAvailable, "available", true, "availability to set")
	menuCmd.AddCommand(menuListCmd, menuGetCmd, menuAvailabilityCmd)
	rootCmd.AddCommand(menuCmd)
}
