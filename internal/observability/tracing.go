package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/stemsi/exstem-papers"

// Tracer returns the named tracer for a component. Spans are no-ops until a
// tracer provider is installed with otel.SetTracerProvider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(tracerName + "/" + component)
}
