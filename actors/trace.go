package actors

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/super-flat/pipeline/actors"

func getSpanContext(ctx context.Context, methodName string, actorName string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(tracerName)
	return tracer.Start(ctx, methodName, trace.WithAttributes(attribute.String("actor.name", actorName)))
}
