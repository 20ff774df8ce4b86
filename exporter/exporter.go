// Package exporter implements an otlptrace.Client that authenticates with a
// bearer token instead of the stock package's static-header or mTLS
// options, and that never surfaces transport failures to its caller: every
// failure mode is folded into a Counters snapshot instead.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentops-ai/agentops-go/internal/timeout"
	"github.com/cenkalti/backoff/v5"
	"google.golang.org/protobuf/proto"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// Config configures a Client.
type Config struct {
	// Endpoint is the API base, e.g. "https://api.agentops.ai". Auth and
	// trace-upload paths are derived from it ("/auth/token", "/v1/traces")
	// unless TracesPath overrides the latter.
	Endpoint   string
	TracesPath string
	APIKey     string

	HTTPClient *http.Client
	Logger     *slog.Logger

	// ShutdownTimeout bounds Stop when the caller's context has no (or a
	// looser) deadline. Defaults to 5s.
	ShutdownTimeout time.Duration
}

// Counters tallies every outcome of UploadTraces, read by diagnostics
// without ever blocking the export path.
type Counters struct {
	Successes int64
	// AuthFailures counts batches dropped after a 401/403 survived one
	// forced token refresh, or because the auth endpoint answered without
	// a usable token.
	AuthFailures int64
	// Rejected counts batches dropped on a permanent 4xx other than auth.
	Rejected int64
	// TransportFailures counts batches dropped after exhausting retry on a
	// 5xx or network error.
	TransportFailures int64
}

// Client implements otlptrace.Client with bearer-token auth and bounded
// retry. It never returns an error from UploadTraces/Start/Stop that would
// propagate to sdktrace's BatchSpanProcessor/our own processors — all
// failures are counted instead.
type Client struct {
	endpoint   string
	tracesURL  string
	httpClient *http.Client
	logger     *slog.Logger
	tokens     *tokenManager
	shutdownTO time.Duration

	successes         atomic.Int64
	authFailures      atomic.Int64
	rejected          atomic.Int64
	transportFailures atomic.Int64

	mu      sync.Mutex
	stopped bool
}

// NewClient builds a Client from cfg. APIKey and Endpoint are required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("exporter: API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("exporter: endpoint is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdownTO := cfg.ShutdownTimeout
	if shutdownTO <= 0 {
		shutdownTO = 5 * time.Second
	}

	tracesURL := cfg.TracesPath
	if tracesURL == "" {
		tracesURL = strings.TrimRight(cfg.Endpoint, "/") + "/v1/traces"
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		tracesURL:  tracesURL,
		httpClient: httpClient,
		logger:     logger,
		tokens:     newTokenManager(httpClient, cfg.Endpoint, cfg.APIKey),
		shutdownTO: shutdownTO,
	}, nil
}

// Start satisfies otlptrace.Client. No connection is held open ahead of
// time, so Start is a no-op beyond marking the client live.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = false
	return nil
}

// Stop satisfies otlptrace.Client: it bounds any further calls and waits at
// most ShutdownTimeout for ctx's own deadline to be looser.
func (c *Client) Stop(ctx context.Context) error {
	return timeout.Do(ctx, c.shutdownTO, func(ctx context.Context) error {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		return nil
	})
}

// UploadTraces satisfies otlptrace.Client. It never returns an error: every
// failure is folded into Counters so a misbehaving backend can't propagate
// back into application code via sdktrace's export path.
func (c *Client) UploadTraces(ctx context.Context, spans []*tracepb.ResourceSpans) error {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || len(spans) == 0 {
		return nil
	}

	payload, err := proto.Marshal(&coltracepb.ExportTraceServiceRequest{ResourceSpans: spans})
	if err != nil {
		c.logger.Error("exporter: marshal failed", "error", err)
		c.rejected.Add(1)
		return nil
	}

	// lastTransient tracks whether the most recent attempt failed for a
	// retryable (5xx/network) reason rather than one sendOnce already
	// counted as permanent, so that exhausting all tries on a transient
	// failure still shows up in Counters instead of silently dropping the
	// batch uncounted.
	var lastTransient bool
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		permanent, serr := c.sendOnce(ctx, payload)
		lastTransient = serr != nil && !permanent
		if serr != nil && permanent {
			return struct{}{}, backoff.Permanent(serr)
		}
		return struct{}{}, serr
	},
		backoff.WithBackOff(newExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
	if err != nil && lastTransient {
		c.transportFailures.Add(1)
	}

	return nil
}

// sendOnce performs one POST attempt, applying the 401/403-refresh-and-
// retry-once rule and classifying the response into the right counter.
// The returned permanent flag tells UploadTraces whether to stop retrying;
// a non-permanent error is retried (subject to the overall attempt cap).
func (c *Client) sendOnce(ctx context.Context, payload []byte) (permanent bool, err error) {
	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		var netErr *url.Error
		if errors.As(err, &netErr) {
			return false, err // auth endpoint unreachable: retry
		}
		c.authFailures.Add(1)
		return true, err
	}

	status, err := c.post(ctx, payload, token)
	if err != nil {
		return false, err // transport error: retry
	}

	switch {
	case status >= 200 && status < 300:
		c.successes.Add(1)
		return false, nil

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		token, err = c.tokens.Token(ctx, true)
		if err != nil {
			c.authFailures.Add(1)
			return true, err
		}
		status, err = c.post(ctx, payload, token)
		if err != nil {
			return false, err
		}
		if status >= 200 && status < 300 {
			c.successes.Add(1)
			return false, nil
		}
		c.authFailures.Add(1)
		return true, fmt.Errorf("exporter: auth retry failed with status %d", status)

	case status >= 400 && status < 500:
		c.rejected.Add(1)
		return true, fmt.Errorf("exporter: rejected with status %d", status)

	default:
		return false, fmt.Errorf("exporter: transient status %d", status)
	}
}

func (c *Client) post(ctx context.Context, payload []byte, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tracesURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Authenticated reports whether the client currently holds an unexpired
// bearer token.
func (c *Client) Authenticated() bool {
	return c.tokens.authenticated()
}

// Counters returns a point-in-time snapshot of export outcomes.
func (c *Client) Counters() Counters {
	return Counters{
		Successes:         c.successes.Load(),
		AuthFailures:      c.authFailures.Load(),
		Rejected:          c.rejected.Load(),
		TransportFailures: c.transportFailures.Load(),
	}
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.2
	return b
}
