package trace

import "context"

type tracerKey struct{}

// WithTracer returns a context carrying t. The CLI attaches the process
// tracer once during command setup; runtime construction reads it back
// with FromContext.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// FromContext returns the tracer carried by ctx. A nil or bare context
// yields Nop, never nil.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return Nop
}
