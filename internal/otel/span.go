// Package otel provides OpenTelemetry instrumentation utilities for the pinphoto server.
package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared across spans.
const (
	AttrPinID       = attribute.Key("pin.id")
	AttrPhotoID     = attribute.Key("photo.id")
	AttrPage        = attribute.Key("sync.page")
	AttrSyncStatus  = attribute.Key("sync.status")
	AttrURLCount    = attribute.Key("fetch.url_count")
	AttrSkipped     = attribute.Key("fetch.skipped")
	AttrResultCount = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed, unless err
// matches one of expected. The status description is generic so that queries
// and connection strings stay out of span status; details remain in the event.
func RecordError(span trace.Span, err error, expected ...error) {
	if err == nil || span == nil {
		return
	}
	for _, e := range expected {
		if errors.Is(err, e) {
			span.SetAttributes(attribute.String("error.expected", err.Error()))
			return
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "operation failed")
}
