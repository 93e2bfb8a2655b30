// Package otel wraps a Dispatcher with OpenTelemetry spans and metrics.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbaliyan/mailboxer"
)

const instrumentationName = "github.com/rbaliyan/mailboxer/dispatch/otel"

// Dispatcher records a span, a duration, a count and failures for every
// dispatch of the wrapped dispatcher.
type Dispatcher struct {
	next mailboxer.Dispatcher
	opts *options

	tracer trace.Tracer

	duration metric.Float64Histogram
	count    metric.Int64Counter
	errors   metric.Int64Counter
	targets  metric.Int64Counter
}

var _ mailboxer.Dispatcher = (*Dispatcher)(nil)

// New wraps next.
func New(next mailboxer.Dispatcher, opts ...Option) (*Dispatcher, error) {
	o := &options{
		tracingEnabled: true,
		metricsEnabled: true,
		name:           "dispatcher",
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	d := &Dispatcher{next: next, opts: o}
	if o.tracingEnabled {
		d.tracer = o.tracerProvider.Tracer(instrumentationName)
	}
	if o.metricsEnabled {
		if err := d.initMetrics(o.meterProvider.Meter(instrumentationName)); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}
	return d, nil
}

func (d *Dispatcher) initMetrics(meter metric.Meter) error {
	var err error
	if d.duration, err = meter.Float64Histogram("mailboxer.dispatch.duration",
		metric.WithDescription("Duration of dispatch calls"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if d.count, err = meter.Int64Counter("mailboxer.dispatch.count",
		metric.WithDescription("Number of dispatch calls"),
	); err != nil {
		return err
	}
	if d.errors, err = meter.Int64Counter("mailboxer.dispatch.errors",
		metric.WithDescription("Number of failed dispatch calls"),
	); err != nil {
		return err
	}
	d.targets, err = meter.Int64Counter("mailboxer.dispatch.recipients",
		metric.WithDescription("Number of recipients handed to the dispatcher"),
	)
	return err
}

func (d *Dispatcher) Dispatch(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
	attrs := []attribute.KeyValue{
		attribute.String("dispatcher", d.opts.name),
		attribute.String("notification.kind", string(n.Kind())),
	}

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "mailboxer.dispatch",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(append(attrs,
				attribute.String("notification.id", n.ID()),
				attribute.Int("recipients", len(recipients)),
			)...),
		)
		defer span.End()
	}

	start := time.Now()
	err := d.next.Dispatch(ctx, n, recipients)

	if d.opts.metricsEnabled {
		set := metric.WithAttributes(attrs...)
		d.duration.Record(ctx, time.Since(start).Seconds(), set)
		d.count.Add(ctx, 1, set)
		d.targets.Add(ctx, int64(len(recipients)), set)
		if err != nil {
			d.errors.Add(ctx, 1, set)
		}
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return err
}
