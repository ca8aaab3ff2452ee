package transport

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NodeTracer wraps a dispatch.Handler with an OpenTelemetry span per node
// dispatch, adapted from graph/emit/otel.go's OTelEmitter — that type turns
// each point-in-time Event into an immediately-ended span; this turns each
// node dispatch (a duration, not an instant) into a span that brackets the
// handler call and records its outcome.
type NodeTracer struct {
	tracer trace.Tracer
}

// NewNodeTracer constructs a NodeTracer from an OpenTelemetry tracer, e.g.
// otel.Tracer("dipeo-core").
func NewNodeTracer(tracer trace.Tracer) *NodeTracer {
	return &NodeTracer{tracer: tracer}
}

// Wrap returns handler instrumented with a span. The span's trace ID is
// propagated onto the returned Envelope via WithTraceID so downstream
// observers and the CLI's `results` command can correlate a node's output
// with its trace.
func (t *NodeTracer) Wrap(handler dispatch.Handler) dispatch.Handler {
	return func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
		ctx, span := t.tracer.Start(ctx, string(n.Type))
		defer span.End()

		span.SetAttributes(
			attribute.String("dipeo.node_id", string(n.ID)),
			attribute.String("dipeo.node_type", string(n.Type)),
		)

		env, err := handler(ctx, n, inputs, services)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return env, err
		}

		traceID := span.SpanContext().TraceID()
		if traceID.IsValid() {
			env = env.WithTraceID(traceID.String())
		}
		return env, nil
	}
}

// WrapAll instruments every handler in handlers, returning a new registry
// so the original is left untouched.
func WrapAll(tracer *NodeTracer, handlers dispatch.HandlerRegistry) dispatch.HandlerRegistry {
	wrapped := make(dispatch.HandlerRegistry, len(handlers))
	for nodeType, handler := range handlers {
		wrapped[nodeType] = tracer.Wrap(handler)
	}
	return wrapped
}

// SpanNameForNode formats a human-readable span name, used by callers that
// build spans outside the handler-wrap path (e.g. sub-diagram execution).
func SpanNameForNode(n *compiler.ExecutableNode) string {
	if n.Label != "" {
		return fmt.Sprintf("%s:%s", n.Type, n.Label)
	}
	return string(n.Type)
}
