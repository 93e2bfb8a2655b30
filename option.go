package mailboxer

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/mailboxer/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultShutdownTimeout = 30 * time.Second
	MinShutdownTimeout     = 1 * time.Second

	// Content limits
	DefaultMaxSubjectLength = 255
	DefaultMaxBodyLength    = 32000

	// Concurrency limits
	DefaultMaxConcurrentDeliveries = 64

	// Orphan sweep
	DefaultReclaimBatchSize   = 100
	DefaultReclaimGracePeriod = time.Minute
)

// options holds service configuration.
type options struct {
	store    store.Store
	logger   *slog.Logger
	cleaner  Cleaner
	resolver ParticipantResolver

	dispatcher        Dispatcher
	onDispatchFailure DispatchFailureFunc

	plugins []Plugin

	// Content limits
	maxSubjectLength int
	maxBodyLength    int

	maxConcurrentDeliveries int
	shutdownTimeout         time.Duration
	reclaimBatchSize        int
	reclaimGracePeriod      time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool
	eventTransport        transport.Transport
	redisClient           redis.UniversalClient
	onEventPublishFailure EventPublishFailureFunc

	now func() time.Time
}

// EventPublishFailureFunc is called when an event fails to publish.
type EventPublishFailureFunc func(eventName string, err error)

// DispatchFailureFunc is called when the Dispatcher returns an error.
// Persisted receipts are not affected.
type DispatchFailureFunc func(err *DispatchError)

// safeEventPublishFailure calls the event failure callback with panic recovery.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:                  slog.Default(),
		cleaner:                 DefaultCleaner(),
		maxSubjectLength:        DefaultMaxSubjectLength,
		maxBodyLength:           DefaultMaxBodyLength,
		maxConcurrentDeliveries: DefaultMaxConcurrentDeliveries,
		shutdownTimeout:         DefaultShutdownTimeout,
		reclaimBatchSize:        DefaultReclaimBatchSize,
		reclaimGracePeriod:      DefaultReclaimGracePeriod,
		now:                     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}
	if o.onDispatchFailure == nil {
		o.onDispatchFailure = func(err *DispatchError) {
			o.logger.Warn("dispatch failed",
				"notification_id", err.NotificationID,
				"error", err.Err)
		}
	}
	return o
}

// Option configures a Service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCleaner sets the text cleaner applied to subjects and bodies before
// validation.
func WithCleaner(c Cleaner) Option {
	return func(o *options) {
		if c != nil {
			o.cleaner = c
		}
	}
}

// WithParticipantResolver sets the resolver used to turn stored references
// back into participants, for example when replying to all participants of a
// conversation.
func WithParticipantResolver(r ParticipantResolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// --- Dispatch Options ---

// WithDispatcher sets the external dispatcher invoked after each successful
// delivery that asks for mail.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// WithDispatchFailureHandler sets the callback for dispatcher errors.
// By default they are logged at Warn.
func WithDispatchFailureHandler(fn DispatchFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onDispatchFailure = fn
		}
	}
}

// --- Plugin/Extension Options ---

// WithPlugin registers a plugin. Plugins implementing DeliveryHook run
// around every delivery.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		if p != nil {
			o.plugins = append(o.plugins, p)
		}
	}
}

// WithPlugins registers multiple plugins at once.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) {
		for _, p := range plugins {
			if p != nil {
				o.plugins = append(o.plugins, p)
			}
		}
	}
}

// WithOnDeliver registers a callback run after every successful delivery.
func WithOnDeliver(fn func(ctx context.Context, n *Notification)) Option {
	return func(o *options) {
		if fn != nil {
			o.plugins = append(o.plugins, onDeliverHook(fn))
		}
	}
}

// --- OpenTelemetry Options ---

// WithTracing enables or disables tracing.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables metrics.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables or disables both tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name used for the event bus and telemetry.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom tracer provider.
// If not set, the global tracer provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom meter provider.
// If not set, the global meter provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Limit Options ---

// WithMaxSubjectLength sets the maximum subject length in characters.
func WithMaxSubjectLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSubjectLength = n
		}
	}
}

// WithMaxBodyLength sets the maximum body length in characters.
func WithMaxBodyLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyLength = n
		}
	}
}

// WithMaxConcurrentDeliveries limits how many deliveries run at once.
func WithMaxConcurrentDeliveries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentDeliveries = n
		}
	}
}

// WithShutdownTimeout sets the maximum time Close waits for in-flight
// deliveries. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// WithReclaimBatchSize sets how many conversations the orphan sweep loads
// per page.
func WithReclaimBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.reclaimBatchSize = n
		}
	}
}

// WithReclaimGracePeriod sets how old a conversation must be before the
// orphan sweep considers it. Younger conversations may still be mid-delivery.
func WithReclaimGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reclaimGracePeriod = d
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal makes event publish failures fail the operation.
// By default they are logged and the operation succeeds.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport. If neither this nor
// WithRedisClient is given, a noop transport is used.
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient publishes events to Redis Streams through the given client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets the callback for event publish failures.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
