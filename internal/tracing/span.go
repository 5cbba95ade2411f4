package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on simulation spans.
const (
	AttrMode    = attribute.Key("ga4sim.mode")
	AttrUsers   = attribute.Key("ga4sim.users")
	AttrJobID   = attribute.Key("ga4sim.job.id")
	AttrPhase   = attribute.Key("ga4sim.phase")
	AttrAttempt = attribute.Key("ga4sim.attempt")
	AttrStatus  = attribute.Key("ga4sim.job.status")
	AttrKind    = attribute.Key("ga4sim.error.kind")
)

// StartRunSpan starts the root span of a simulation run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, mode string, users int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "simulation",
		trace.WithAttributes(AttrMode.String(mode), AttrUsers.Int(users)),
	)
}

// StartJobSpan starts the span covering one job.
func StartJobSpan(ctx context.Context, tracer trace.Tracer, jobID, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "job",
		trace.WithAttributes(AttrJobID.String(jobID), AttrMode.String(mode)),
	)
}

// StartPhaseSpan starts the span of one phase attempt.
func StartPhaseSpan(ctx context.Context, tracer trace.Tracer, phase string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, phase,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrPhase.String(phase), AttrAttempt.Int(attempt)),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
