// Package agentops is an OpenTelemetry-based observability SDK for agent
// and LLM workloads: it authenticates to a collector with a bearer token,
// exports spans through two hand-rolled processors (a live in-flight
// snapshotter and a bounded batch queue), and offers a small session/trace
// API plus a registry for instrumenting host LLM/agent clients.
package agentops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agentops-ai/agentops-go/attrs"
	"github.com/agentops-ai/agentops-go/exporter"
	"github.com/agentops-ai/agentops-go/registry"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/trace"
)

// SDK state machine values. running is tracked separately via activeTraces
// (at least one root span open); this covers the coarser
// uninit/ready/stopping/stopped lifecycle.
const (
	stateUninit int32 = iota
	stateReady
	stateStopping
	stateStopped
	stateDegraded
)

// SDK is the constructed entry point returned by Init. The zero value is
// not usable; always construct via Init.
type SDK struct {
	cfg Config

	tracer         trace.Tracer
	encoder        *attrs.Encoder
	exporterClient *exporter.Client
	provider       *tracerProvider
	registry       *registry.Registry
	logger         *slog.Logger

	state        atomic.Int32
	activeTraces atomic.Int64

	// sessionHandle is the root span Init opens when AutoStartSession is
	// set; Shutdown ends it if it's still open.
	sessionHandle *TraceHandle

	mu        sync.RWMutex
	lastError error

	shutdownOnce sync.Once
	signalCancel context.CancelFunc
}

// Init builds an SDK from environment variables overridden by opts. A
// missing API key or exporter construction failure does not return only an
// error: it also returns a non-nil *SDK in a degraded state whose methods
// are documented no-ops, so callers who don't check Init's error don't panic
// on a nil receiver.
func Init(ctx context.Context, opts ...Option) (*SDK, error) {
	cfg := configFromEnv()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger()
	s := &SDK{cfg: cfg, logger: logger, encoder: attrs.NewEncoder()}

	if cfg.APIKey == "" {
		s.state.Store(stateDegraded)
		return s, errors.New("agentops: AGENTOPS_API_KEY is required")
	}

	client, err := exporter.NewClient(exporter.Config{
		Endpoint:   cfg.APIEndpoint,
		TracesPath: cfg.tracesURL(),
		APIKey:     cfg.APIKey,
		Logger:     logger,
	})
	if err != nil {
		s.state.Store(stateDegraded)
		s.lastError = err
		return s, fmt.Errorf("agentops: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		s.state.Store(stateDegraded)
		s.lastError = err
		return s, fmt.Errorf("agentops: %w", err)
	}

	otlpExp, err := otlptrace.New(ctx, client)
	if err != nil {
		s.state.Store(stateDegraded)
		s.lastError = err
		return s, fmt.Errorf("agentops: building otlp exporter: %w", err)
	}

	res := buildResource(cfg)
	tp := newTracerProvider(res, otlpExp,
		withQueueCapacity(cfg.QueueCapacity),
		withDrainInterval(cfg.DrainInterval),
		withLiveSnapshotInterval(cfg.LiveSnapshotInterval),
	)

	s.exporterClient = client
	s.provider = tp
	s.tracer = tp.Tracer("github.com/agentops-ai/agentops-go")
	s.registry = registry.New(tp.TracerProvider, logger)
	s.state.Store(stateReady)

	if cfg.AutoStartSession {
		_, handle := s.startTrace(ctx, "session", WithTraceTags(cfg.DefaultTags...))
		s.sessionHandle = handle
	}

	if cfg.AutoShutdown {
		s.installSignalShutdown()
	}

	return s, nil
}

func (s *SDK) installSignalShutdown() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s.signalCancel = cancel
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("agentops: shutdown on signal failed", "error", err)
		}
	}()
}

func (s *SDK) degraded() bool {
	state := s.state.Load()
	return state == stateUninit || state == stateDegraded || state == stateStopped
}

// StartTrace opens a root span. On a degraded SDK it returns ctx unchanged
// and a handle whose EndTrace is a no-op.
func (s *SDK) StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, *TraceHandle) {
	if s.degraded() {
		return ctx, &TraceHandle{name: name}
	}
	return s.startTrace(ctx, name, opts...)
}

// EndTrace closes a handle returned by StartTrace.
func (s *SDK) EndTrace(handle *TraceHandle, status Status) {
	if s.degraded() {
		return
	}
	s.endTrace(handle, status)
}

// RunTrace runs fn inside a trace, ending it with StatusOk/StatusError
// based on fn's return value.
func (s *SDK) RunTrace(ctx context.Context, name string, fn func(context.Context) error, opts ...TraceOption) error {
	if s.degraded() {
		return fn(ctx)
	}
	return s.runTrace(ctx, name, fn, opts...)
}

// Instrument offers host to the instrumentor registry and returns the
// client to use from here on. Go has no ambient means of detecting which
// LLM/agent clients are in scope, so callers explicitly hand each one to
// Instrument. Instrumentors that work by closure substitution (the llm
// instrumentor wrapping a bare providers.Provider) return a decorated
// client that MUST be used in place of host — calls made on the original
// produce no spans. Instrumentors with an in-place plugin seam (the
// hostagent instrumentor installing a Tracer on an Agent) return host
// itself. On a degraded SDK, host is returned unchanged.
func (s *SDK) Instrument(host any) (any, error) {
	if s.degraded() {
		return host, nil
	}
	wrapped, err := s.registry.Activate(host)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		return host, err
	}
	return wrapped, nil
}

// Shutdown ends the controller-owned session span, deactivates every
// instrumentor (restoring each host's original state), drains both span
// processors, and stops the exporter. Idempotent across repeated calls.
func (s *SDK) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.state.Store(stateStopping)
		if s.signalCancel != nil {
			s.signalCancel()
		}
		if s.sessionHandle != nil {
			s.endTrace(s.sessionHandle, StatusOk)
		}
		if s.registry != nil {
			s.registry.DeactivateAll()
		}
		if s.provider != nil {
			if err := s.provider.Shutdown(ctx); err != nil {
				shutdownErr = err
			}
		}
		s.state.Store(stateStopped)
	})
	return shutdownErr
}

// globalMu guards lazy construction of the package-level default SDK used
// by the package-level Init/StartTrace/... wrapper functions.
var (
	globalMu  sync.Mutex
	globalSDK *SDK
)

// packageInit lets package-level wrappers share one *SDK without forcing
// every test to touch global state — tests should construct their own *SDK
// via Init and call its methods directly instead. A call with the same
// API key as the already-initialized global SDK is a no-op returning the
// existing instance; a different key logs a warning and replaces it.
func packageInit(ctx context.Context, opts ...Option) (*SDK, error) {
	cfg := configFromEnv()
	for _, opt := range opts {
		opt(&cfg)
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSDK != nil && !globalSDK.degraded() {
		if globalSDK.cfg.APIKey == cfg.APIKey {
			return globalSDK, nil
		}
		globalSDK.logger.Warn("agentops: PackageInit called again with a different API key, reconfiguring")
	}

	sdk, err := Init(ctx, opts...)
	globalSDK = sdk
	return sdk, err
}

func globalInstance() *SDK {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalSDK == nil {
		globalSDK = &SDK{}
		globalSDK.state.Store(stateUninit)
	}
	return globalSDK
}

// PackageInit initializes the package-level default SDK.
func PackageInit(ctx context.Context, opts ...Option) (*SDK, error) {
	return packageInit(ctx, opts...)
}

// StartTrace delegates to the package-level default SDK.
func StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, *TraceHandle) {
	return globalInstance().StartTrace(ctx, name, opts...)
}

// EndTrace delegates to the package-level default SDK.
func EndTrace(handle *TraceHandle, status Status) {
	globalInstance().EndTrace(handle, status)
}

// RunTrace delegates to the package-level default SDK.
func RunTrace(ctx context.Context, name string, fn func(context.Context) error, opts ...TraceOption) error {
	return globalInstance().RunTrace(ctx, name, fn, opts...)
}

// Instrument delegates to the package-level default SDK.
func Instrument(host any) (any, error) {
	return globalInstance().Instrument(host)
}

// Shutdown delegates to the package-level default SDK.
func Shutdown(ctx context.Context) error {
	return globalInstance().Shutdown(ctx)
}

// Diagnose delegates to the package-level default SDK.
func Diagnose() DiagnosticReport {
	return globalInstance().Diagnose()
}
