package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenResponse is the JSON body returned by POST {endpoint}/auth/token.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// refreshSkew is how far ahead of expiry a token is proactively refreshed.
const refreshSkew = 60 * time.Second

// tokenManager owns the bearer token lifecycle for one API key: it fetches
// a token, tracks its expiry, and refreshes it ahead of time. Concurrent
// callers during a refresh share the single in-flight request rather than
// each issuing their own.
type tokenManager struct {
	httpClient *http.Client
	authURL    string
	apiKey     string

	mu         sync.Mutex
	token      string
	expiresAt  time.Time
	refreshing chan struct{} // non-nil while a refresh is in flight
}

func newTokenManager(httpClient *http.Client, endpoint, apiKey string) *tokenManager {
	return &tokenManager{
		httpClient: httpClient,
		authURL:    strings.TrimRight(endpoint, "/") + "/auth/token",
		apiKey:     apiKey,
	}
}

// Token returns a currently valid bearer token, fetching or refreshing one
// if necessary. forceRefresh bypasses the cached token even if unexpired,
// used after a 401/403 from the trace-upload endpoint.
func (tm *tokenManager) Token(ctx context.Context, forceRefresh bool) (string, error) {
	tm.mu.Lock()
	if !forceRefresh && tm.token != "" && time.Now().Before(tm.expiresAt.Add(-refreshSkew)) {
		token := tm.token
		tm.mu.Unlock()
		return token, nil
	}

	if tm.refreshing != nil {
		wait := tm.refreshing
		tm.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		tm.mu.Lock()
		token := tm.token
		tm.mu.Unlock()
		if token == "" {
			return "", fmt.Errorf("exporter: token refresh failed")
		}
		return token, nil
	}

	done := make(chan struct{})
	tm.refreshing = done
	tm.mu.Unlock()

	token, err := tm.fetch(ctx)

	tm.mu.Lock()
	if err == nil {
		tm.token = token
	}
	tm.refreshing = nil
	tm.mu.Unlock()
	close(done)

	if err != nil {
		return "", err
	}
	return token, nil
}

// authenticated reports whether a fetched token is currently held and
// unexpired.
func (tm *tokenManager) authenticated() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token != "" && time.Now().Before(tm.expiresAt)
}

func (tm *tokenManager) fetch(ctx context.Context) (string, error) {
	form := url.Values{"api_key": {tm.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("exporter: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exporter: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("exporter: auth failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.Token == "" {
		return "", fmt.Errorf("exporter: malformed auth response")
	}

	tm.mu.Lock()
	tm.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	tm.mu.Unlock()

	return tr.Token, nil
}
