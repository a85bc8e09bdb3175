package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/envelope"
)

// authServer simulates a backend whose access tokens can be invalidated.
// /protected answers 401 until the bearer matches the current token;
// /auth/refresh mints a new one after an artificial delay so concurrent 401s
// overlap with the exchange.
type authServer struct {
	mu           sync.Mutex
	current      string
	refreshDelay time.Duration
	refreshFails bool

	refreshCalls   atomic.Int64
	protectedCalls atomic.Int64
}

func (s *authServer) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		time.Sleep(s.refreshDelay)
		if s.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": {"code": "UNAUTHORIZED", "message": "refresh token revoked"}}`)
			return
		}
		s.mu.Lock()
		s.current = fmt.Sprintf("access-%d", s.refreshCalls.Load())
		token := s.current
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"accessToken":  token,
				"refreshToken": "refresh-next",
			},
		})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		s.protectedCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+s.token() {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": {"code": "UNAUTHORIZED", "message": "token expired"}}`)
			return
		}
		writeCanonical(w, 200, map[string]any{"ok": true})
	})
	return mux
}

func TestConcurrent401sRefreshOnce(t *testing.T) {
	srv := &authServer{current: "access-valid", refreshDelay: 150 * time.Millisecond}
	client, tokens, _ := newTestClient(t, srv.handler(), nil)
	// Stored token is stale: every first attempt 401s.
	require.NoError(t, tokens.SetTokens("access-stale", "refresh-0"))

	const n = 6
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int64(1), srv.refreshCalls.Load(),
		"concurrent 401s must share a single token exchange")
	assert.Equal(t, srv.token(), tokens.AccessToken(), "refreshed token persisted")
	assert.Equal(t, "refresh-next", tokens.RefreshToken())
}

func TestRefreshFailureSettlesAllWaiters(t *testing.T) {
	srv := &authServer{current: "access-valid", refreshDelay: 150 * time.Millisecond, refreshFails: true}

	var authFailures atomic.Int64
	client, tokens, _ := newTestClient(t, srv.handler(), func(cfg *api.Config) {
		cfg.OnAuthFailure = func() { authFailures.Add(1) }
	})
	require.NoError(t, tokens.SetTokens("access-stale", "refresh-0"))

	const n = 4
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "request %d", i)
		assert.True(t, envelope.IsCode(err, envelope.CodeUnauthorized), "request %d: got %v", i, err)
	}
	assert.Equal(t, int64(1), srv.refreshCalls.Load())
	assert.Equal(t, int64(1), authFailures.Load(), "auth-failure hook runs once, on the leader")
	assert.True(t, tokens.wasCleared(), "terminal refresh failure clears the stored pair")
}

func TestNoSecondReplayAfterRefreshedRetry(t *testing.T) {
	// The server rejects even the refreshed token; the request must not loop.
	srv := &authServer{current: "never-issued"}
	client, tokens, _ := newTestClient(t, srv.handler(), nil)
	require.NoError(t, tokens.SetTokens("access-stale", "refresh-0"))

	_, err := client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, envelope.IsCode(err, envelope.CodeUnauthorized), "got %v", err)
	assert.Equal(t, int64(1), srv.refreshCalls.Load(), "exactly one refresh attempt")
	assert.Equal(t, int64(2), srv.protectedCalls.Load(), "original attempt plus one replay")
}

func TestReplayUsesRefreshedToken(t *testing.T) {
	srv := &authServer{current: "access-valid"}
	client, tokens, _ := newTestClient(t, srv.handler(), nil)
	require.NoError(t, tokens.SetTokens("access-stale", "refresh-0"))

	env, err := client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "access-1", tokens.AccessToken())
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	srv := &authServer{current: "access-valid"}
	client, tokens, _ := newTestClient(t, srv.handler(), nil)
	require.NoError(t, tokens.SetTokens("access-aging", "refresh-0"))
	tokens.expiresSoon = true

	env, err := client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, int64(1), srv.refreshCalls.Load(), "expiring token refreshed before the request")
	assert.Equal(t, int64(1), srv.protectedCalls.Load(), "no 401 round-trip needed")
}

func TestRefreshWithoutStoredTokenFails(t *testing.T) {
	srv := &authServer{current: "access-valid"}
	client, tokens, _ := newTestClient(t, srv.handler(), nil)
	require.NoError(t, tokens.SetTokens("access-stale", ""))

	_, err := client.Request(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, envelope.IsCode(err, envelope.CodeUnauthorized), "got %v", err)
	assert.Equal(t, int64(0), srv.refreshCalls.Load())
}
