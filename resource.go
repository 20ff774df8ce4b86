package agentops

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/agentops-ai/agentops-go/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	otelsemconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// buildResource constructs the OTel resource attached to every span this
// SDK exports. project.id is derived from the API key rather than carried
// as a credential baked into transport headers.
func buildResource(cfg Config) *resource.Resource {
	return resource.NewSchemaless(
		otelsemconv.ServiceName(cfg.ServiceName),
		otelsemconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String(string(semconv.DeploymentEnvironment), cfg.Environment),
		attribute.String(string(semconv.ProjectIDKey), projectID(cfg.APIKey)),
		attribute.String(string(semconv.TelemetrySDKLanguage), "go"),
		attribute.String(string(semconv.TelemetrySDKNameKey), "agentops"),
	)
}

// projectID derives a stable, non-reversible identifier from the API key:
// the first 8 hex characters of its SHA-256 digest. The raw key itself is
// never attached to a span or resource attribute.
func projectID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:8]
}
