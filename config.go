package agentops

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultAPIEndpoint = "https://api.agentops.ai"

	envAPIKey      = "AGENTOPS_API_KEY"
	envAPIEndpoint = "AGENTOPS_API_ENDPOINT"
	envExporterURL = "AGENTOPS_EXPORTER_ENDPOINT"
	envLogLevel    = "AGENTOPS_LOG_LEVEL"
)

// Config holds everything Init needs to stand up the SDK. Built from
// environment variables first, then overridden by any Option passed to
// Init.
type Config struct {
	APIKey         string
	APIEndpoint    string
	TracesURL      string // overrides APIEndpoint + "/v1/traces" when set
	ServiceName    string
	ServiceVersion string
	Environment    string

	Logger               *slog.Logger
	LogLevel             slog.Level
	AutoShutdown         bool
	QueueCapacity        int
	DrainInterval        time.Duration
	LiveSnapshotInterval time.Duration

	// AutoStartSession controls whether Init opens a root "session" span
	// immediately, tagged with DefaultTags. Defaults to true.
	AutoStartSession bool
	DefaultTags      []string
}

// configFromEnv seeds a Config from the documented environment variables,
// applying the package defaults for anything left unset.
func configFromEnv() Config {
	cfg := Config{
		APIKey:               os.Getenv(envAPIKey),
		APIEndpoint:          defaultAPIEndpoint,
		ServiceName:          "agentops-app",
		AutoShutdown:         true,
		LogLevel:             slog.LevelInfo,
		QueueCapacity:        2048,
		DrainInterval:        5 * time.Second,
		LiveSnapshotInterval: time.Second,
		AutoStartSession:     true,
	}
	if v := os.Getenv(envAPIEndpoint); v != "" {
		cfg.APIEndpoint = v
	}
	if v := os.Getenv(envExporterURL); v != "" {
		cfg.TracesURL = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Option customizes a Config built by configFromEnv before Init applies it.
type Option func(*Config)

// WithAPIKey overrides AGENTOPS_API_KEY.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithAPIEndpoint overrides AGENTOPS_API_ENDPOINT.
func WithAPIEndpoint(endpoint string) Option { return func(c *Config) { c.APIEndpoint = endpoint } }

// WithTracesURL overrides AGENTOPS_EXPORTER_ENDPOINT.
func WithTracesURL(url string) Option { return func(c *Config) { c.TracesURL = url } }

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option { return func(c *Config) { c.ServiceName = name } }

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.ServiceVersion = version }
}

// WithEnvironment sets the deployment.environment resource attribute.
func WithEnvironment(env string) Option { return func(c *Config) { c.Environment = env } }

// WithLogger replaces the default stderr text logger (built at
// AGENTOPS_LOG_LEVEL) with a caller-supplied logger.
func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// WithLogLevel overrides AGENTOPS_LOG_LEVEL.
func WithLogLevel(level slog.Level) Option { return func(c *Config) { c.LogLevel = level } }

// WithoutAutoShutdown disables the SIGINT/SIGTERM-triggered graceful
// shutdown goroutine Init starts by default.
func WithoutAutoShutdown() Option { return func(c *Config) { c.AutoShutdown = false } }

// WithQueueCapacity overrides the batch processor's ring-buffer capacity.
func WithQueueCapacity(n int) Option { return func(c *Config) { c.QueueCapacity = n } }

// WithoutAutoStartSession stops Init from opening its own root "session"
// span. Callers that only ever use explicit StartTrace/EndTrace calls, and
// don't want a concurrent always-open root span competing for attention in
// the dashboard, should pass this.
func WithoutAutoStartSession() Option { return func(c *Config) { c.AutoStartSession = false } }

// WithDefaultTags attaches tags to Init's auto-started session span.
func WithDefaultTags(tags ...string) Option { return func(c *Config) { c.DefaultTags = tags } }

func (c Config) tracesURL() string {
	if c.TracesURL != "" {
		return c.TracesURL
	}
	return strings.TrimRight(c.APIEndpoint, "/") + "/v1/traces"
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}
