// Package observability sets up structured logging, tracing and metrics for
// the server binaries.
package observability

import (
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceInfo identifies the process in every exported span and metric.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// newResource builds the resource from service attributes only, so it never
// conflicts with the schema of resource.Default().
func newResource(info ServiceInfo) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(info.Name),
		semconv.ServiceVersion(info.Version),
		semconv.DeploymentEnvironment(info.Environment),
	)
}
