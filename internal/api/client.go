// Package api implements the resilient request pipeline for the BistroHQ
// admin API: authentication and tenant header injection, response
// normalization through the compatibility manager, single-flight token
// refresh with replay, and binary transfer handling. All methods are
// context-aware and respect the shared rate limiter.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bistrohq/bistroctl/internal/compat"
	"github.com/bistrohq/bistroctl/internal/envelope"
	"github.com/bistrohq/bistroctl/internal/notify"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultReportTimeout = 2 * time.Minute
	defaultRefreshPath   = "/auth/refresh"
	// refreshLeeway triggers a proactive refresh when the access token is
	// about to expire, through the same single-flight gate as 401 recovery.
	refreshLeeway = 30 * time.Second

	headerTenant    = "X-Tenant-Id"
	headerRequestID = "X-Request-Id"
)

// Doer is the transport collaborator. *http.Client satisfies it; tests
// inject fakes.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource is the credential storage collaborator.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string) error
	Clear() error
	AccessExpiresWithin(d time.Duration) bool
}

// TenantSource yields the current tenant slug ("" when unknown).
type TenantSource interface {
	Slug() string
}

// Config assembles a Client's collaborators. Zero fields get defaults.
type Config struct {
	BaseURL       string
	HTTP          Doer
	Compat        *compat.Manager
	Tokens        TokenSource
	Tenant        TenantSource
	Notifier      notify.Notifier
	Saver         FileSaver
	Timeout       time.Duration
	ReportTimeout time.Duration
	Rate          float64
	RefreshPath   string
	// OnAuthFailure runs once when a token refresh terminally fails —
	// the CLI analogue of forcing navigation to the login entry point.
	OnAuthFailure func()
	Debug         bool
	Logger        *slog.Logger
}

// Client is the request pipeline.
type Client struct {
	baseURL       string
	http          Doer
	compat        *compat.Manager
	tokens        TokenSource
	tenant        TenantSource
	notifier      notify.Notifier
	saver         FileSaver
	limiter       *rate.Limiter
	timeout       time.Duration
	reportTimeout time.Duration
	refreshPath   string
	onAuthFailure func()
	debug         bool
	logger        *slog.Logger

	refresh refreshGate
}

// NewClient builds a Client from cfg, filling in defaults.
func NewClient(cfg Config) *Client {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{}
	}
	if cfg.Compat == nil {
		cfg.Compat = compat.NewManager(compat.Options{EnableStats: true}, cfg.Logger)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Silent{}
	}
	if cfg.Saver == nil {
		cfg.Saver = DirSaver{Dir: "."}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaultRefreshPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	burst := int(cfg.Rate)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTP,
		compat:        cfg.Compat,
		tokens:        cfg.Tokens,
		tenant:        cfg.Tenant,
		notifier:      cfg.Notifier,
		saver:         cfg.Saver,
		limiter:       rate.NewLimiter(rate.Limit(cfg.Rate), burst),
		timeout:       cfg.Timeout,
		reportTimeout: cfg.ReportTimeout,
		refreshPath:   cfg.RefreshPath,
		onAuthFailure: cfg.OnAuthFailure,
		debug:         cfg.Debug,
		logger:        cfg.Logger,
	}
}

// Compat exposes the compatibility manager for stats/report commands.
func (c *Client) Compat() *compat.Manager {
	return c.compat
}

// ─── Typed Verbs ──────────────────────────────────────────────────────────────

// Get performs a GET and unwraps the envelope's data into out.
// out may be nil when the payload is not needed.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any, opts *RequestOptions) error {
	env, err := c.Request(ctx, http.MethodGet, path, params, nil, opts)
	if err != nil {
		return err
	}
	return DecodeData(env.Data, out)
}

// Post performs a POST with a JSON body and unwraps the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts *RequestOptions) error {
	env, err := c.Request(ctx, http.MethodPost, path, nil, body, opts)
	if err != nil {
		return err
	}
	return DecodeData(env.Data, out)
}

// Put performs a PUT with a JSON body and unwraps the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts *RequestOptions) error {
	env, err := c.Request(ctx, http.MethodPut, path, nil, body, opts)
	if err != nil {
		return err
	}
	return DecodeData(env.Data, out)
}

// Patch performs a PATCH with a JSON body and unwraps the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any, opts *RequestOptions) error {
	env, err := c.Request(ctx, http.MethodPatch, path, nil, body, opts)
	if err != nil {
		return err
	}
	return DecodeData(env.Data, out)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) error {
	_, err := c.Request(ctx, http.MethodDelete, path, nil, nil, opts)
	return err
}

// Page is one page of a paginated collection.
type Page[T any] struct {
	Items      []T
	Pagination envelope.PaginationMeta
}

// GetPaginated fetches a paginated collection, accepting the canonical shape
// (array data + meta.pagination), the normalized legacy shape
// ({items, pagination} data), and bare arrays without paging info.
func GetPaginated[T any](ctx context.Context, c *Client, path string, params url.Values) (Page[T], error) {
	page := Page[T]{Items: []T{}}
	env, err := c.Request(ctx, http.MethodGet, path, params, nil, nil)
	if err != nil {
		return page, err
	}

	if _, isArray := env.Data.([]any); isArray {
		if err := DecodeData(env.Data, &page.Items); err != nil {
			return page, err
		}
		if env.Meta.Pagination != nil {
			page.Pagination = *env.Meta.Pagination
		} else {
			// A bare array carries no paging info; the whole collection is
			// one page.
			page.Pagination = envelope.NewPagination(1, len(page.Items), len(page.Items))
		}
		return page, nil
	}

	var wrapped struct {
		Items      []T                      `json:"items"`
		Pagination *envelope.PaginationMeta `json:"pagination"`
	}
	if err := DecodeData(env.Data, &wrapped); err != nil {
		return page, err
	}
	if wrapped.Items != nil {
		page.Items = wrapped.Items
	}
	if wrapped.Pagination != nil {
		page.Pagination = *wrapped.Pagination
	} else {
		page.Pagination = envelope.NewPagination(1, len(page.Items), len(page.Items))
	}
	return page, nil
}

// BulkOperation posts items to a bulk endpoint and returns the partial
// success/failure summary.
func (c *Client) BulkOperation(ctx context.Context, path string, items any, opts *RequestOptions) (*envelope.BulkResult, error) {
	env, err := c.Request(ctx, http.MethodPost, path, nil, map[string]any{"items": items}, opts)
	if err != nil {
		return nil, err
	}
	res := &envelope.BulkResult{}
	if err := DecodeData(env.Data, res); err != nil {
		return nil, err
	}
	if res.Successful == nil {
		res.Successful = []any{}
	}
	if res.Failed == nil {
		res.Failed = []envelope.BulkFailure{}
	}
	return res, nil
}

// DecodeData re-marshals a normalized data payload into a typed value.
// Both data == nil and out == nil are no-ops.
func DecodeData(data, out any) error {
	if data == nil || out == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("re-encoding payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// ─── Core Pipeline ────────────────────────────────────────────────────────────

// Request performs one pipeline request and returns the full canonical
// envelope. Callers that want the payload unwrapped use the typed verbs.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any, opts *RequestOptions) (*envelope.Envelope, error) {
	opts = opts.orDefault()
	return c.do(ctx, method, path, params, body, opts, false)
}

// do is one attempt of the request state machine. retried guards the
// single-replay rule: a request never retries more than once for a 401.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, opts *RequestOptions, retried bool) (*envelope.Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Proactive refresh when the token is about to lapse; failures are
	// ignored here — the server's 401 is the authority.
	if !retried && c.tokens != nil && c.tokens.RefreshToken() != "" &&
		c.tokens.AccessExpiresWithin(refreshLeeway) {
		_, _ = c.refreshAccess(ctx)
	}

	requestID := uuid.NewString()
	req, err := c.newRequest(ctx, method, path, params, body, requestID)
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if opts.Report {
		timeout = c.reportTimeout
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(reqCtx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(method, err, opts, requestID)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, envelope.WrapAPIError(envelope.CodeNetwork,
			"reading response body", resp.StatusCode, requestID, err)
	}

	if c.debug {
		c.logger.Debug("api response",
			"method", method, "path", path,
			"status", resp.StatusCode, "bytes", len(raw), "requestId", requestID)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return c.recover401(ctx, method, path, params, body, opts, retried, raw, requestID)
	}

	if resp.StatusCode >= 400 {
		apiErr := errorFromBody(method, resp.StatusCode, raw, requestID)
		c.notifyError(apiErr, opts)
		return nil, apiErr
	}

	env := c.normalize(resp.StatusCode, raw, path, requestID)
	if !env.Success {
		apiErr := errorFromEnvelope(method, env.StatusCode, env)
		c.notifyError(apiErr, opts)
		return env, apiErr
	}
	if opts.SuccessMessage != "" {
		c.notifier.Notify(notify.LevelSuccess, opts.SuccessMessage, env.Meta.RequestID)
	}
	return env, nil
}

// recover401 drives the refresh-and-replay path. The retried flag has
// already consumed its one replay when set; the session is then terminal.
func (c *Client) recover401(ctx context.Context, method, path string, params url.Values, body any, opts *RequestOptions, retried bool, raw []byte, requestID string) (*envelope.Envelope, error) {
	if retried || path == c.refreshPath || c.tokens == nil {
		apiErr := errorFromBody(method, http.StatusUnauthorized, raw, requestID)
		c.notifyError(apiErr, opts)
		return nil, apiErr
	}
	if _, err := c.refreshAccess(ctx); err != nil {
		apiErr := envelope.WrapAPIError(envelope.CodeUnauthorized,
			"session expired and could not be refreshed", http.StatusUnauthorized, requestID, err)
		c.notifyError(apiErr, opts)
		return nil, apiErr
	}
	return c.do(ctx, method, path, params, body, opts, true)
}

// normalize runs a successful response body through the compatibility
// manager. Empty bodies (204-equivalent) become empty success envelopes.
func (c *Client) normalize(status int, raw []byte, path, requestID string) *envelope.Envelope {
	if len(bytes.TrimSpace(raw)) == 0 {
		env := &envelope.Envelope{
			Success:    true,
			StatusCode: status,
			Meta:       envelope.NewMeta(requestID),
		}
		return env
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Non-JSON 2xx body: hand the raw text to the classifier as a
		// primitive rather than failing the request outright.
		decoded = string(raw)
	}
	env := c.compat.Process(decoded, path)
	if !compat.Classify(decoded).Canonical {
		// Canonical envelopes carry their own status; synthesized ones
		// inherit the transport status.
		env.StatusCode = status
	}
	return env
}

// newRequest builds the outgoing request with auth, tenant, and correlation
// headers. Tenant injection is best-effort: a missing slug never blocks.
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any, requestID string) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "bistroctl/1.0")
	req.Header.Set(headerRequestID, requestID)
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if c.tenant != nil {
		if slug := c.tenant.Slug(); slug != "" {
			req.Header.Set(headerTenant, slug)
		}
	}

	if c.debug {
		c.logger.Debug("api request", "method", method, "url", reqURL, "requestId", requestID)
	}
	return req, nil
}

// transportError maps a transport failure to the error taxonomy. Report
// deadlines get their dedicated code; everything else keeps the original
// transport error for the caller.
func (c *Client) transportError(method string, err error, opts *RequestOptions, requestID string) error {
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if !timedOut {
		var netErr interface{ Timeout() bool }
		timedOut = errors.As(err, &netErr) && netErr.Timeout()
	}
	var apiErr *envelope.APIError
	switch {
	case opts.Report && timedOut:
		apiErr = envelope.WrapAPIError(envelope.CodeReportTimeout,
			"report generation timed out; narrow the date range or apply filters",
			http.StatusGatewayTimeout, requestID, err)
	case timedOut:
		apiErr = envelope.WrapAPIError(envelope.CodeNetwork,
			fmt.Sprintf("%s request timed out", method), 0, requestID, err)
	default:
		apiErr = envelope.WrapAPIError(envelope.CodeNetwork, err.Error(), 0, requestID, err)
	}
	c.notifyError(apiErr, opts)
	return apiErr
}

// notifyError surfaces a hard error through the notifier. Plan-gating
// errors are deliberately silent: the UI handles them inline.
func (c *Client) notifyError(apiErr *envelope.APIError, opts *RequestOptions) {
	if opts.SkipErrorHandling || apiErr.PlanGated() {
		return
	}
	c.notifier.Notify(notify.LevelError, apiErr.Message, apiErr.RequestID)
}
