package mailboxer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/mailboxer/store"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// Type aliases for commonly used store types.
type (
	ListOptions = store.ListOptions
	SortOrder   = store.SortOrder
	MailboxType = store.MailboxType
	Filter      = store.Filter
)

// Re-exported constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc

	MailboxInbox   = store.MailboxInbox
	MailboxSentbox = store.MailboxSentbox
)

// Connection states.
const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
)

// Service delivers notifications and messages and manages per-participant
// receipts, conversations and opt-outs. It is safe for concurrent use.
type Service struct {
	store      store.Store
	logger     *slog.Logger
	opts       *options
	state      int32 // stateDisconnected, stateConnecting, or stateConnected
	plugins    *pluginRegistry
	otel       *otelInstrumentation
	validator  *contentValidator
	deliverSem *semaphore.Weighted
	eventBus   *event.Bus
	events     *ServiceEvents
}

// NewService creates a service. WithStore is required.
func NewService(opts ...Option) (*Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	plugins := newPluginRegistry(o.logger)
	for _, p := range o.plugins {
		plugins.register(p)
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &Service{
		store:      o.store,
		logger:     o.logger,
		opts:       o,
		plugins:    plugins,
		otel:       otelInstr,
		validator:  newContentValidator(o.maxSubjectLength, o.maxBodyLength),
		deliverSem: semaphore.NewWeighted(int64(o.maxConcurrentDeliveries)),
	}, nil
}

// Events returns the service's events. Nil before Connect.
func (s *Service) Events() *ServiceEvents {
	return s.events
}

// IsConnected reports whether the service is connected and ready.
func (s *Service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect connects the store, creates the event bus and initializes plugins.
func (s *Service) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		_ = s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	if err := s.plugins.initAll(ctx); err != nil {
		_ = s.eventBus.Close(ctx)
		_ = s.store.Close(ctx)
		return fmt.Errorf("init plugins: %w", err)
	}

	success = true
	s.logger.Info("mailboxer service connected")
	return nil
}

var busCounter int64

// initEventBus creates this service's bus and registers its events.
func (s *Service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "mailboxer"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		_ = bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}
	return nil
}

// Close waits for in-flight deliveries (up to the shutdown timeout), then
// closes plugins, the event bus and the store.
func (s *Service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs error

	// No new delivery can start once the state is disconnected; acquiring
	// every slot waits for the running ones.
	s.logger.Info("waiting for in-flight deliveries to complete", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.deliverSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentDeliveries)); err != nil {
		s.logger.Warn("timeout waiting for in-flight deliveries, proceeding with shutdown",
			"error", err)
		errs = multierr.Append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.deliverSem.Release(int64(s.opts.maxConcurrentDeliveries))
	}

	if err := s.plugins.closeAll(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close plugins: %w", err))
	}

	if s.eventBus != nil {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close store: %w", err))
	}

	return errs
}

func (s *Service) checkConnected() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.opts.now()
}

func newID() string {
	return uuid.New().String()
}
