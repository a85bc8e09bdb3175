// Package render converts dashboard and admin data into human-readable or
// machine-parseable output. Each view is a separate function; tables use
// tablewriter, json uses an indented encoder.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bistrohq/bistroctl/internal/compat"
	"github.com/bistrohq/bistroctl/internal/dashboard"
	"github.com/bistrohq/bistroctl/internal/envelope"
	"github.com/bistrohq/bistroctl/internal/model"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// ─── Dashboard ────────────────────────────────────────────────────────────────

// Dashboard writes every loaded widget, marking failed and plan-gated
// widgets instead of omitting them.
func Dashboard(w io.Writer, s *dashboard.Store, format string) error {
	if format == FormatJSON {
		return JSON(w, dashboardPayload(s))
	}

	fmt.Fprintln(w, "Overview")
	if note := widgetNote(s.Overview.Err()); note != "" {
		fmt.Fprintln(w, "  "+note)
	} else {
		Overview(w, s.Overview.Data())
	}

	fmt.Fprintln(w, "\nTop Items")
	if note := widgetNote(s.TopItems.Err()); note != "" {
		fmt.Fprintln(w, "  "+note)
	} else {
		TopItems(w, s.TopItems.Data())
	}

	fmt.Fprintln(w, "\nCategory Performance")
	if note := widgetNote(s.Categories.Err()); note != "" {
		fmt.Fprintln(w, "  "+note)
	} else {
		Categories(w, s.Categories.Data())
	}

	fmt.Fprintln(w, "\nSales Trend")
	if note := widgetNote(s.SalesTrend.Err()); note != "" {
		fmt.Fprintln(w, "  "+note)
	} else {
		SalesTrend(w, s.SalesTrend.Data())
	}

	fmt.Fprintln(w, "\nRecent Orders")
	if note := widgetNote(s.RecentOrders.Err()); note != "" {
		fmt.Fprintln(w, "  "+note)
	} else {
		Orders(w, s.RecentOrders.Data())
	}
	return nil
}

// widgetNote renders a widget's error inline: plan gates get a quiet
// "not available" note, hard errors show the correlation id.
func widgetNote(err *envelope.APIError) string {
	if err == nil {
		return ""
	}
	if err.PlanGated() {
		return "(not available on the current plan)"
	}
	return fmt.Sprintf("(failed to load: %s, request %s)", err.Message, err.RequestID)
}

func dashboardPayload(s *dashboard.Store) map[string]any {
	widget := func(data any, err *envelope.APIError) map[string]any {
		m := map[string]any{"data": data}
		if err != nil {
			m["error"] = map[string]any{
				"code":      err.Code,
				"message":   err.Message,
				"requestId": err.RequestID,
			}
		}
		return m
	}
	return map[string]any{
		"overview":     widget(s.Overview.Data(), s.Overview.Err()),
		"topItems":     widget(s.TopItems.Data(), s.TopItems.Err()),
		"categories":   widget(s.Categories.Data(), s.Categories.Err()),
		"salesTrend":   widget(s.SalesTrend.Data(), s.SalesTrend.Err()),
		"recentOrders": widget(s.RecentOrders.Data(), s.RecentOrders.Err()),
	}
}

// Overview renders the overview metrics as a field/value table.
func Overview(w io.Writer, m model.OverviewMetrics) {
	tw := newTable(w, []string{"METRIC", "VALUE"})
	tw.Append([]string{"Total Revenue", money(m.TotalRevenue)})
	tw.Append([]string{"Total Orders", fmt.Sprintf("%d", m.TotalOrders)})
	tw.Append([]string{"Avg Order Value", money(m.AverageOrderValue)})
	tw.Append([]string{"Active Menu Items", fmt.Sprintf("%d", m.ActiveMenuItems)})
	tw.Render()
}

// TopItems renders the top-selling items.
func TopItems(w io.Writer, items []model.TopItem) {
	tw := newTable(w, []string{"ITEM", "QTY", "REVENUE"})
	for _, it := range items {
		tw.Append([]string{it.Name, fmt.Sprintf("%d", it.Quantity), money(it.Revenue)})
	}
	tw.Render()
}

// Categories renders category performance rows.
func Categories(w io.Writer, cats []model.CategoryPerformance) {
	tw := newTable(w, []string{"CATEGORY", "ORDERS", "REVENUE"})
	for _, c := range cats {
		tw.Append([]string{c.Name, fmt.Sprintf("%d", c.Orders), money(c.Revenue)})
	}
	tw.Render()
}

// SalesTrend renders trend points.
func SalesTrend(w io.Writer, points []model.TrendPoint) {
	tw := newTable(w, []string{"DATE", "ORDERS", "REVENUE"})
	for _, p := range points {
		tw.Append([]string{p.Date, fmt.Sprintf("%d", p.Orders), money(p.Revenue)})
	}
	tw.Render()
}

// Orders renders an order listing.
func Orders(w io.Writer, orders []model.Order) {
	tw := newTable(w, []string{"ORDER", "STATUS", "TOTAL", "PLACED"})
	for _, o := range orders {
		placed := ""
		if !o.PlacedAt.IsZero() {
			placed = o.PlacedAt.Local().Format(time.RFC3339)
		}
		tw.Append([]string{o.Number, o.Status, money(o.Total), placed})
	}
	tw.Render()
}

// ─── Menu ─────────────────────────────────────────────────────────────────────

// MenuItems renders a menu item page with its pagination footer.
func MenuItems(w io.Writer, items []model.MenuItem, p envelope.PaginationMeta, format string) error {
	if format == FormatJSON {
		return JSON(w, map[string]any{"items": items, "pagination": p})
	}
	tw := newTable(w, []string{"ID", "NAME", "CATEGORY", "PRICE", "AVAILABLE"})
	for _, it := range items {
		avail := "no"
		if it.Available {
			avail = "yes"
		}
		tw.Append([]string{it.ID, it.Name, it.Category, money(it.Price), avail})
	}
	tw.Render()
	fmt.Fprintf(w, "page %d/%d (%d items)\n", p.Page, p.TotalPages, p.TotalItems)
	return nil
}

// BulkResult renders a bulk operation summary.
func BulkResult(w io.Writer, res *envelope.BulkResult, format string) error {
	if format == FormatJSON {
		return JSON(w, res)
	}
	fmt.Fprintf(w, "processed %d: %d succeeded, %d failed\n",
		res.TotalProcessed, res.SuccessCount, res.ErrorCount)
	if len(res.Failed) > 0 {
		tw := newTable(w, []string{"INDEX", "ID", "CODE", "ERROR"})
		for _, f := range res.Failed {
			tw.Append([]string{fmt.Sprintf("%d", f.Index), f.ID, f.Code, f.Error})
		}
		tw.Render()
	}
	return nil
}

// ─── Compatibility Report ─────────────────────────────────────────────────────

// CompatReport renders the conversion report.
func CompatReport(w io.Writer, rep compat.Report, format string) error {
	if format == FormatJSON {
		return JSON(w, rep)
	}
	fmt.Fprintf(w, "generated %s: %d conversions, %d recent errors\n",
		rep.Generated.Format(time.RFC3339), rep.TotalConversions, rep.RecentErrorCount)
	if len(rep.ByFormat) > 0 {
		tw := newTable(w, []string{"FORMAT", "COUNT"})
		for tag, count := range rep.ByFormat {
			tw.Append([]string{string(tag), fmt.Sprintf("%d", count)})
		}
		tw.Render()
	}
	for _, rec := range rep.Recommendations {
		fmt.Fprintf(w, "recommendation: %s\n", rec)
	}
	return nil
}
