package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/envelope"
	"github.com/bistrohq/bistroctl/internal/notify"
)

// ─── Test Doubles ─────────────────────────────────────────────────────────────

// fakeTokens is an in-memory TokenSource.
type fakeTokens struct {
	mu          sync.Mutex
	access      string
	refresh     string
	expiresSoon bool
	cleared     bool
}

func (f *fakeTokens) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeTokens) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeTokens) SetTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = access
	f.refresh = refresh
	return nil
}

func (f *fakeTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.refresh = ""
	f.cleared = true
	return nil
}

func (f *fakeTokens) AccessExpiresWithin(time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiresSoon
}

func (f *fakeTokens) wasCleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// fakeNotifier records every notification delivered.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (f *fakeNotifier) Notify(level notify.Level, message, correlationID string) notify.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, fmt.Sprintf("%s: %s", level, message))
	return notify.Handle(len(f.notes))
}

func (f *fakeNotifier) Dismiss(notify.Handle) {}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notes...)
}

type staticTenant string

func (s staticTenant) Slug() string { return string(s) }

// newTestClient wires a Client against an httptest server. The rate limit is
// raised so concurrency tests are not paced by the limiter.
func newTestClient(t *testing.T, handler http.Handler, mutate func(*api.Config)) (*api.Client, *fakeTokens, *fakeNotifier) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{access: "access-0", refresh: "refresh-0"}
	notifier := &fakeNotifier{}
	cfg := api.Config{
		BaseURL:  srv.URL,
		Tokens:   tokens,
		Tenant:   staticTenant("acme"),
		Notifier: notifier,
		Rate:     1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return api.NewClient(cfg), tokens, notifier
}

// writeCanonical emits a canonical success envelope.
func writeCanonical(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"statusCode": status,
		"data":       data,
		"error":      nil,
		"meta": map[string]any{
			"requestId": "srv-req-1",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// ─── Unwrapping ───────────────────────────────────────────────────────────────

func TestGetUnwrapsCanonicalEnvelope(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCanonical(w, 200, map[string]any{"id": "1", "name": "Margherita"})
	}), nil)

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := client.Get(context.Background(), "/menu/items/1", nil, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, "Margherita", out.Name)
}

func TestGetUnwrapsWrappedDataResponse(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {"id": "1"}}`)
	}), nil)

	var out struct {
		ID string `json:"id"`
	}
	err := client.Get(context.Background(), "/menu/items/1", nil, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID)
}

func TestRequestReturnsNormalizedEnvelope(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "1", "status": "pending"}`)
	}), nil)

	env, err := client.Request(context.Background(), http.MethodGet, "/orders/1", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, 200, env.StatusCode)
	assert.Contains(t, env.Meta.RequestID, "legacy-")
	assert.NoError(t, env.Validate())
}

func TestEmptyBodyBecomesEmptySuccess(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	env, err := client.Request(context.Background(), http.MethodDelete, "/menu/items/1", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, http.StatusNoContent, env.StatusCode)
	assert.Nil(t, env.Data)
}

func TestNonJSONBodyTreatedAsPrimitive(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "pong")
	}), nil)

	env, err := client.Request(context.Background(), http.MethodGet, "/health", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "pong", env.Data)
}

// ─── Headers ──────────────────────────────────────────────────────────────────

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeCanonical(w, 200, nil)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer access-0", got.Get("Authorization"))
	assert.Equal(t, "acme", got.Get("X-Tenant-Id"))
	assert.NotEmpty(t, got.Get("X-Request-Id"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestMissingTenantDoesNotBlock(t *testing.T) {
	var got http.Header
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeCanonical(w, 200, nil)
	}), func(cfg *api.Config) {
		cfg.Tenant = staticTenant("")
	})

	_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Get("X-Tenant-Id"))
}

// ─── Error Taxonomy ───────────────────────────────────────────────────────────

func TestValidationErrorCarriesFieldDetails(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error": {"code": "VALIDATION_ERROR", "message": "invalid item",
			"details": [{"field": "price", "message": "must be positive", "value": -1}]}}`)
	}), nil)

	err := client.Post(context.Background(), "/menu/items", map[string]any{"price": -1}, nil, nil)
	require.Error(t, err)

	apiErr, ok := envelope.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.CodeValidation, apiErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Len(t, apiErr.Fields, 1)
	assert.Equal(t, "price", apiErr.Fields[0].Field)
	assert.Equal(t, "must be positive", apiErr.Fields[0].Message)
}

func TestValidationErrorMapDetails(t *testing.T) {
	// Some backends send details as a {field: message} map instead of an array.
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"code": "VALIDATION_ERROR", "message": "invalid item",
			"details": {"name": "is required"}}}`)
	}), nil)

	err := client.Post(context.Background(), "/menu/items", map[string]any{}, nil, nil)
	require.Error(t, err)
	apiErr, ok := envelope.AsAPIError(err)
	require.True(t, ok)
	require.Len(t, apiErr.Fields, 1)
	assert.Equal(t, "name", apiErr.Fields[0].Field)
	assert.Equal(t, "is required", apiErr.Fields[0].Message)
}

func TestStatusFallbackCodes(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, envelope.CodeValidation},
		{http.StatusForbidden, envelope.CodeForbidden},
		{http.StatusRequestEntityTooLarge, envelope.CodeFileTooLarge},
		{http.StatusInternalServerError, "GET_OPERATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"message": "nope"}`)
			}), nil)

			_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil, nil)
			require.Error(t, err)
			assert.True(t, envelope.IsCode(err, tc.want), "expected %s, got %v", tc.want, err)
		})
	}
}

func TestCanonicalFailureEnvelopeKeepsItsStatus(t *testing.T) {
	// Some backends answer 200 at the transport level while the envelope
	// itself reports a failure.
	client, _, notifier := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": false, "statusCode": 403, "data": null,
			"error": {"code": "FEATURE_NOT_AVAILABLE", "message": "upgrade required"},
			"meta": {"requestId": "srv-req-9", "timestamp": "2026-08-01T10:00:00Z"}}`)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/dashboard/top-items", nil, nil, nil)
	require.Error(t, err)

	apiErr, ok := envelope.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.CodeFeatureNotAvailable, apiErr.Code)
	assert.Equal(t, 403, apiErr.Status)
	assert.Equal(t, "srv-req-9", apiErr.RequestID)
	assert.True(t, api.IsFeatureGated(err))
	assert.Empty(t, notifier.all(), "plan-gating errors are not surfaced as notifications")
}

func TestHardErrorNotifies(t *testing.T) {
	client, _, notifier := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": "FORBIDDEN", "message": "no access"}}`)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil, nil)
	require.Error(t, err)
	require.Len(t, notifier.all(), 1)
	assert.Contains(t, notifier.all()[0], "no access")
}

func TestSkipErrorHandlingSuppressesNotification(t *testing.T) {
	client, _, notifier := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": "FORBIDDEN", "message": "no access"}}`)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil,
		&api.RequestOptions{SkipErrorHandling: true})
	require.Error(t, err)
	assert.True(t, envelope.IsCode(err, envelope.CodeForbidden), "typed error still returned")
	assert.Empty(t, notifier.all())
}

func TestReportTimeoutCode(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeCanonical(w, 200, nil)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/reports/sales/export", nil, nil,
		&api.RequestOptions{Report: true, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, envelope.IsCode(err, envelope.CodeReportTimeout), "got %v", err)
}

func TestPlainTimeoutIsNetworkError(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeCanonical(w, 200, nil)
	}), nil)

	_, err := client.Request(context.Background(), http.MethodGet, "/orders", nil, nil,
		&api.RequestOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, envelope.IsCode(err, envelope.CodeNetwork), "got %v", err)
}

// ─── Pagination ───────────────────────────────────────────────────────────────

func TestGetPaginatedCanonicalShape(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": true, "statusCode": 200,
			"data": [{"id": "1"}, {"id": "2"}], "error": null,
			"meta": {"requestId": "srv-req-1", "timestamp": "2026-08-01T10:00:00Z",
				"pagination": {"page": 2, "limit": 2, "totalItems": 10, "totalPages": 5}}}`)
	}), nil)

	type item struct {
		ID string `json:"id"`
	}
	page, err := api.GetPaginated[item](context.Background(), client, "/menu/items", url.Values{"page": {"2"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "1", page.Items[0].ID)
	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 5, page.Pagination.TotalPages)
}

func TestGetPaginatedLegacyShape(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": [{"id": "1"}, {"id": "2"}], "total": 10, "limit": 2}`)
	}), nil)

	type item struct {
		ID string `json:"id"`
	}
	page, err := api.GetPaginated[item](context.Background(), client, "/menu/items", nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 2, page.Pagination.Limit)
	assert.Equal(t, 10, page.Pagination.TotalItems)
	assert.Equal(t, 5, page.Pagination.TotalPages)
}

func TestGetPaginatedBareArray(t *testing.T) {
	// Endpoints that never paginated answer with a bare JSON array; the
	// whole collection is treated as a single page.
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id": "1"}, {"id": "2"}]`)
	}), nil)

	type item struct {
		ID string `json:"id"`
	}
	page, err := api.GetPaginated[item](context.Background(), client, "/menu/categories", nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "2", page.Items[1].ID)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 2, page.Pagination.TotalItems)
	assert.Equal(t, 1, page.Pagination.TotalPages)
}

// ─── Bulk Operations ──────────────────────────────────────────────────────────

func TestBulkOperationPartialFailure(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		items, ok := req["items"].([]any)
		assert.True(t, ok, "bulk request must post an items array")
		assert.Len(t, items, 2)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {
			"successful": [{"id": "1"}],
			"failed": [{"index": 1, "id": "2", "error": "not found", "code": "VALIDATION_ERROR"}],
			"totalProcessed": 2, "successCount": 1, "errorCount": 1}}`)
	}), nil)

	res, err := client.BulkOperation(context.Background(), "/menu/items/bulk-availability",
		[]map[string]any{{"id": "1"}, {"id": "2"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalProcessed)
	assert.Equal(t, 1, res.SuccessCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "not found", res.Failed[0].Error)
	assert.Equal(t, 1, res.Failed[0].Index)
}

func TestSuccessMessageNotified(t *testing.T) {
	client, _, notifier := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCanonical(w, 200, map[string]any{"updated": true})
	}), nil)

	err := client.Put(context.Background(), "/menu/items/1", map[string]any{"available": false}, nil,
		&api.RequestOptions{SuccessMessage: "item updated"})
	require.NoError(t, err)
	require.Len(t, notifier.all(), 1)
	assert.Contains(t, notifier.all()[0], "item updated")
}
