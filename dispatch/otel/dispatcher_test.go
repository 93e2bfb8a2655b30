package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/dispatch/dispatchtest"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	fail := true
	next := mailboxer.DispatcherFunc(func(context.Context, *mailboxer.Notification, []mailboxer.Participant) error {
		if fail {
			return errors.New("relay unavailable")
		}
		return nil
	})
	d, err := New(next, WithName("s3"), WithTracerProvider(tp), WithMeterProvider(mp))
	require.NoError(t, err)

	n, rs := dispatchtest.Notify(t, "s",
		dispatchtest.Contact("a", "a@example.com"),
		dispatchtest.Contact("b", "b@example.com"),
	)
	assert.Error(t, d.Dispatch(ctx, n, rs))
	fail = false
	assert.NoError(t, d.Dispatch(ctx, n, rs))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "mailboxer.dispatch", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumOf(t, rm, "mailboxer.dispatch.count"))
	assert.Equal(t, int64(1), sumOf(t, rm, "mailboxer.dispatch.errors"))
	assert.Equal(t, int64(4), sumOf(t, rm, "mailboxer.dispatch.recipients"))
}

func TestDispatcherDisabled(t *testing.T) {
	calls := 0
	next := mailboxer.DispatcherFunc(func(context.Context, *mailboxer.Notification, []mailboxer.Participant) error {
		calls++
		return nil
	})
	d, err := New(next, WithTracing(false), WithMetrics(false))
	require.NoError(t, err)
	assert.Nil(t, d.tracer)

	n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", "a@example.com"))
	require.NoError(t, d.Dispatch(context.Background(), n, rs))
	assert.Equal(t, 1, calls)
}
