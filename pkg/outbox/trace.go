package outbox

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

var traceContext = propagation.TraceContext{}

func injectTrace(ctx context.Context) (traceParent, traceState string) {
	carrier := propagation.MapCarrier{}
	traceContext.Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

// ContextWithTrace returns ctx carrying the remote span recorded in meta, so
// that work done on behalf of a dispatched message joins the enqueuing trace.
func ContextWithTrace(ctx context.Context, meta *Meta) context.Context {
	if meta == nil || meta.TraceParent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": meta.TraceParent}
	if meta.TraceState != "" {
		carrier["tracestate"] = meta.TraceState
	}
	return traceContext.Extract(ctx, carrier)
}
