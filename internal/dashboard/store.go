package dashboard

import (
	"context"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/model"
)

// Store owns the dashboard's widget map. Each widget has its own loader;
// LoadAll fans them out concurrently and never lets one failure stop the
// others.
type Store struct {
	client *api.Client

	Overview     *Widget[model.OverviewMetrics]
	TopItems     *Widget[[]model.TopItem]
	Categories   *Widget[[]model.CategoryPerformance]
	SalesTrend   *Widget[[]model.TrendPoint]
	RecentOrders *Widget[[]model.Order]
}

// New builds a Store with every widget at its safe default.
func New(client *api.Client) *Store {
	return &Store{
		client:       client,
		Overview:     NewWidget(model.DefaultOverviewMetrics),
		TopItems:     NewWidget(func() []model.TopItem { return []model.TopItem{} }),
		Categories:   NewWidget(func() []model.CategoryPerformance { return []model.CategoryPerformance{} }),
		SalesTrend:   NewWidget(func() []model.TrendPoint { return []model.TrendPoint{} }),
		RecentOrders: NewWidget(func() []model.Order { return []model.Order{} }),
	}
}

// LoadOverview loads the overview metrics widget. The returned error is the
// same one recorded on the widget; LoadAll callers ignore it.
func (s *Store) LoadOverview(ctx context.Context) error {
	return s.Overview.Load(func() (model.OverviewMetrics, error) {
		out := model.DefaultOverviewMetrics()
		err := s.client.Get(ctx, "/dashboard/overview", nil, &out, widgetOpts())
		return out, err
	})
}

// LoadTopItems loads the top-selling-items widget.
func (s *Store) LoadTopItems(ctx context.Context, limit int) error {
	return s.TopItems.Load(func() ([]model.TopItem, error) {
		params := url.Values{}
		if limit > 0 {
			params.Set("limit", strconv.Itoa(limit))
		}
		items := []model.TopItem{}
		err := s.client.Get(ctx, "/dashboard/top-items", params, &items, widgetOpts())
		return items, err
	})
}

// LoadCategories loads the category-performance widget.
func (s *Store) LoadCategories(ctx context.Context) error {
	return s.Categories.Load(func() ([]model.CategoryPerformance, error) {
		cats := []model.CategoryPerformance{}
		err := s.client.Get(ctx, "/dashboard/category-performance", nil, &cats, widgetOpts())
		return cats, err
	})
}

// LoadSalesTrend loads the sales-trend widget for the given period
// ("7d", "30d", ...). Empty period uses the server default.
func (s *Store) LoadSalesTrend(ctx context.Context, period string) error {
	return s.SalesTrend.Load(func() ([]model.TrendPoint, error) {
		params := url.Values{}
		if period != "" {
			params.Set("period", period)
		}
		points := []model.TrendPoint{}
		err := s.client.Get(ctx, "/dashboard/sales-trend", params, &points, widgetOpts())
		return points, err
	})
}

// LoadRecentOrders loads the recent-orders widget.
func (s *Store) LoadRecentOrders(ctx context.Context, limit int) error {
	return s.RecentOrders.Load(func() ([]model.Order, error) {
		params := url.Values{}
		if limit > 0 {
			params.Set("limit", strconv.Itoa(limit))
		}
		orders := []model.Order{}
		err := s.client.Get(ctx, "/dashboard/recent-orders", params, &orders, widgetOpts())
		return orders, err
	})
}

// LoadAll triggers every widget's loader concurrently and independently.
// Failures are captured per-widget; LoadAll itself always returns nil once
// every loader has settled.
func (s *Store) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.LoadOverview(gctx); return nil })
	g.Go(func() error { s.LoadTopItems(gctx, 10); return nil })
	g.Go(func() error { s.LoadCategories(gctx); return nil })
	g.Go(func() error { s.LoadSalesTrend(gctx, "30d"); return nil })
	g.Go(func() error { s.LoadRecentOrders(gctx, 10); return nil })
	return g.Wait()
}

// HasAnyErrors reflects the union of all widget error states without
// merging their payloads.
func (s *Store) HasAnyErrors() bool {
	return s.Overview.Err() != nil ||
		s.TopItems.Err() != nil ||
		s.Categories.Err() != nil ||
		s.SalesTrend.Err() != nil ||
		s.RecentOrders.Err() != nil
}

// Reset restores every widget to its initial state.
func (s *Store) Reset() {
	s.Overview.Reset()
	s.TopItems.Reset()
	s.Categories.Reset()
	s.SalesTrend.Reset()
	s.RecentOrders.Reset()
}

// widgetOpts: widget loads handle their own failures inline, so the
// pipeline's error notification is suppressed.
func widgetOpts() *api.RequestOptions {
	return &api.RequestOptions{SkipErrorHandling: true}
}
