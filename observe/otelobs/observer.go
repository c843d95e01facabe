// Package otelobs turns settled timeline nodes into OpenTelemetry spans.
//
// Spans are created after the fact, stamped with the node's start and end
// times. Marks become span events when the engine tracks history.
package otelobs

import (
	"context"

	"github.com/aponysus/ilw/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Observer struct {
	observe.BaseObserver
	tracer trace.Tracer
}

func New(tracer trace.Tracer) *Observer {
	return &Observer{tracer: tracer}
}

func (o *Observer) OnSettle(rec observe.SettleRecord) {
	if o == nil || o.tracer == nil {
		return
	}

	spanName := "ilw." + rec.Timeline
	if rec.Branch != "" {
		spanName += "[" + rec.Branch + "]"
	}
	startOpts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if !rec.Start.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(rec.Start))
	}
	_, span := o.tracer.Start(context.Background(), spanName, startOpts...)
	span.SetAttributes(
		attribute.String("ilw.timeline", rec.Timeline),
		attribute.String("ilw.timeline_id", rec.TimelineID),
		attribute.String("ilw.branch", rec.Branch),
		attribute.String("ilw.outcome", string(rec.Outcome)),
		attribute.Int("ilw.marks", len(rec.Marks)),
		attribute.Bool("ilw.report", rec.Flags.Report),
		attribute.Bool("ilw.persist", rec.Flags.Persist),
	)

	for _, mark := range rec.Marks {
		attrs := []attribute.KeyValue{
			attribute.String("ilw.level", mark.Level.String()),
			attribute.Int64("ilw.duration_ms", mark.Duration.Milliseconds()),
		}
		if mark.Message != "" {
			attrs = append(attrs, attribute.String("ilw.message", mark.Message))
		}
		eventOpts := []trace.EventOption{trace.WithAttributes(attrs...)}
		if !mark.Time.IsZero() {
			eventOpts = append(eventOpts, trace.WithTimestamp(mark.Time))
		}
		span.AddEvent(mark.Name, eventOpts...)
	}

	if rec.Outcome == observe.OutcomeRejected {
		msg := "rejected"
		if rec.Reason != nil {
			span.RecordError(rec.Reason)
			msg = rec.Reason.Error()
		}
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, "resolved")
	}

	if !rec.End.IsZero() {
		span.End(trace.WithTimestamp(rec.End))
		return
	}
	span.End()
}
