package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

// refreshGate enforces the single-flight refresh invariant: at most one
// token-exchange call is in flight process-wide. Callers arriving while a
// refresh is underway park on a buffered waiter channel and are settled
// exactly once when the refresh completes.
//
// The in-progress flag is checked and set under the mutex before any
// blocking occurs, so concurrent 401s can never launch a second exchange.
type refreshGate struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// refreshAccess returns a fresh access token, either by performing the
// token exchange (leader) or by waiting on one already in flight.
func (c *Client) refreshAccess(ctx context.Context) (string, error) {
	c.refresh.mu.Lock()
	if c.refresh.inFlight {
		ch := make(chan refreshResult, 1)
		c.refresh.waiters = append(c.refresh.waiters, ch)
		c.refresh.mu.Unlock()
		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			// The waiter channel is buffered; the leader's settle never blocks.
			return "", ctx.Err()
		}
	}
	c.refresh.inFlight = true
	c.refresh.mu.Unlock()

	token, err := c.exchangeRefreshToken(ctx)

	c.refresh.mu.Lock()
	c.refresh.inFlight = false
	waiters := c.refresh.waiters
	c.refresh.waiters = nil
	c.refresh.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}

	if err != nil {
		// Terminal auth failure: clear credentials and force the operator
		// back through login. Runs once, on the leader.
		_ = c.tokens.Clear()
		if c.onAuthFailure != nil {
			c.onAuthFailure()
		}
	}
	return token, err
}

// exchangeRefreshToken POSTs the stored refresh token to the dedicated
// refresh endpoint and persists the returned pair. This is the only refresh
// mechanism: there is no profile-refetch fallback.
func (c *Client) exchangeRefreshToken(ctx context.Context) (string, error) {
	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		return "", fmt.Errorf("no refresh token stored")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", fmt.Errorf("encoding refresh request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.baseURL+c.refreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bistroctl/1.0")
	if c.tenant != nil {
		if slug := c.tenant.Slug(); slug != "" {
			req.Header.Set(headerTenant, slug)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh exchange: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", errorFromBody(http.MethodPost, resp.StatusCode, raw, fmt.Sprintf("error-%d", time.Now().UnixMilli()))
	}

	// The refresh endpoint may answer canonical or legacy-wrapped; run it
	// through the same normalization as everything else.
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	env := c.compat.Process(decoded, c.refreshPath)
	if !env.Success {
		return "", errorFromEnvelope(http.MethodPost, resp.StatusCode, env)
	}

	var pair tokenPair
	if err := DecodeData(env.Data, &pair); err != nil {
		return "", err
	}
	if pair.AccessToken == "" {
		return "", envelope.NewAPIError(envelope.CodeUnauthorized,
			"refresh response carried no access token", resp.StatusCode, env.Meta.RequestID)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return "", fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	if c.debug {
		c.logger.Debug("access token refreshed", "requestId", env.Meta.RequestID)
	}
	return pair.AccessToken, nil
}
