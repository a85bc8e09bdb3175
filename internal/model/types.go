// Package model defines the canonical business data types used throughout
// bistroctl. Widget stores hold these types, never raw response envelopes.
package model

import "time"

// ─── Dashboard Widgets ────────────────────────────────────────────────────────

// OverviewMetrics is the dashboard overview widget payload.
type OverviewMetrics struct {
	TotalRevenue      float64   `json:"totalRevenue"`
	TotalOrders       int       `json:"totalOrders"`
	AverageOrderValue float64   `json:"averageOrderValue"`
	ActiveMenuItems   int       `json:"activeMenuItems"`
	TopSellingItems   []TopItem `json:"topSellingItems"`
	RecentOrders      []Order   `json:"recentOrders"`
}

// DefaultOverviewMetrics is the safe default for the overview widget: a
// structurally valid zeroed struct with empty (non-nil) slices.
func DefaultOverviewMetrics() OverviewMetrics {
	return OverviewMetrics{
		TopSellingItems: []TopItem{},
		RecentOrders:    []Order{},
	}
}

// TopItem is one entry of the top-selling-items widget.
type TopItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// CategoryPerformance is one row of the category-performance widget.
type CategoryPerformance struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Orders     int     `json:"orders"`
	Revenue    float64 `json:"revenue"`
}

// TrendPoint is one point of the sales-trend widget.
type TrendPoint struct {
	Date    string  `json:"date"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// ─── Orders ───────────────────────────────────────────────────────────────────

// Order is a customer order as shown in the admin views.
type Order struct {
	ID       string      `json:"id"`
	Number   string      `json:"number"`
	Status   string      `json:"status"`
	Total    float64     `json:"total"`
	PlacedAt time.Time   `json:"placedAt"`
	Items    []OrderLine `json:"items,omitempty"`
}

// OrderLine is one line item of an order.
type OrderLine struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// ─── Menu ─────────────────────────────────────────────────────────────────────

// MenuItem is one entry of the tenant's menu.
type MenuItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MenuCategory groups menu items.
type MenuCategory struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"itemCount"`
}
