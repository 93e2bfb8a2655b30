package mailboxer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/mailboxer"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	deliverLatency metric.Float64Histogram
	deliverCount   metric.Int64Counter
	deliverErrors  metric.Int64Counter

	receiptsCreated metric.Int64Counter
	receiptsUpdated metric.Int64Counter

	opLatency metric.Float64Histogram
	opErrors  metric.Int64Counter

	conversationsDestroyed metric.Int64Counter
	dispatchFailures       metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.deliverLatency, err = meter.Float64Histogram(
		"mailboxer.deliver.duration",
		metric.WithDescription("Duration of deliveries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deliverCount, err = meter.Int64Counter(
		"mailboxer.deliver.count",
		metric.WithDescription("Number of deliveries"),
	)
	if err != nil {
		return err
	}

	o.deliverErrors, err = meter.Int64Counter(
		"mailboxer.deliver.errors",
		metric.WithDescription("Number of failed deliveries"),
	)
	if err != nil {
		return err
	}

	o.receiptsCreated, err = meter.Int64Counter(
		"mailboxer.receipts.created",
		metric.WithDescription("Number of receipts created"),
	)
	if err != nil {
		return err
	}

	o.receiptsUpdated, err = meter.Int64Counter(
		"mailboxer.receipts.updated",
		metric.WithDescription("Number of receipts changed by state updates"),
	)
	if err != nil {
		return err
	}

	o.opLatency, err = meter.Float64Histogram(
		"mailboxer.op.duration",
		metric.WithDescription("Duration of receipt and conversation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.opErrors, err = meter.Int64Counter(
		"mailboxer.op.errors",
		metric.WithDescription("Number of failed receipt and conversation operations"),
	)
	if err != nil {
		return err
	}

	o.conversationsDestroyed, err = meter.Int64Counter(
		"mailboxer.conversations.destroyed",
		metric.WithDescription("Number of orphaned conversations destroyed"),
	)
	if err != nil {
		return err
	}

	o.dispatchFailures, err = meter.Int64Counter(
		"mailboxer.dispatch.failures",
		metric.WithDescription("Number of failed dispatcher calls"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled. The returned function
// ends the span, recording err.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordDeliver records delivery metrics.
func (o *otelInstrumentation) recordDeliver(ctx context.Context, duration time.Duration, kind string, receipts int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
	)

	o.deliverLatency.Record(ctx, duration.Seconds(), attrs)
	o.deliverCount.Add(ctx, 1, attrs)
	if err != nil {
		o.deliverErrors.Add(ctx, 1, attrs)
		return
	}
	o.receiptsCreated.Add(ctx, int64(receipts), attrs)
}

// recordOp records metrics for receipt updates and conversation operations.
func (o *otelInstrumentation) recordOp(ctx context.Context, duration time.Duration, op string, changed int64, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
	)

	o.opLatency.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		o.opErrors.Add(ctx, 1, attrs)
		return
	}
	if changed > 0 {
		o.receiptsUpdated.Add(ctx, changed, attrs)
	}
}

func (o *otelInstrumentation) recordDestroyed(ctx context.Context) {
	if !o.metricsEnabled {
		return
	}
	o.conversationsDestroyed.Add(ctx, 1)
}

func (o *otelInstrumentation) recordDispatchFailure(ctx context.Context) {
	if !o.metricsEnabled {
		return
	}
	o.dispatchFailures.Add(ctx, 1)
}
