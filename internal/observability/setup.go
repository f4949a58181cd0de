package observability

import (
	"context"

	"github.com/bnoverseas/payments-service/internal/infrastructure/observability"
)

// Setup wires logging, metrics and tracing and returns the tracer shutdown hook.
func Setup(serviceName, logLevel string) func(context.Context) error {
	observability.InitLogger(logLevel)
	observability.InitMetrics()
	return observability.InitTracing(serviceName)
}
