package mailboxer

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"
)

// Plugin defines the interface for service extensions.
//
// For observing receipt changes and conversation lifecycle, use the event
// system instead (Service.Events()).
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string
	// Init initializes the plugin. Called when service connects.
	Init(ctx context.Context) error
	// Close cleans up plugin resources. Called when service closes.
	Close(ctx context.Context) error
}

// DeliveryHook runs around every delivery.
type DeliveryHook interface {
	Plugin
	// BeforeDeliver runs after validation and before anything is persisted.
	// Return an error to abort the delivery.
	BeforeDeliver(ctx context.Context, n *Notification) error
	// AfterDeliver runs after the delivery is persisted and dispatched.
	// Errors are logged; the delivery cannot be rolled back.
	AfterDeliver(ctx context.Context, n *Notification) error
}

// pluginRegistry holds registered plugins.
type pluginRegistry struct {
	all     []Plugin
	deliver []DeliveryHook
	logger  *slog.Logger
}

// newPluginRegistry creates a new plugin registry.
func newPluginRegistry(logger *slog.Logger) *pluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &pluginRegistry{logger: logger}
}

// register adds a plugin to the registry.
func (r *pluginRegistry) register(p Plugin) {
	r.all = append(r.all, p)

	if h, ok := p.(DeliveryHook); ok {
		r.deliver = append(r.deliver, h)
	}
}

// initAll initializes all plugins.
// On failure, already-initialized plugins are closed in reverse order.
func (r *pluginRegistry) initAll(ctx context.Context) error {
	for i, p := range r.all {
		if err := p.Init(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if closeErr := r.all[j].Close(ctx); closeErr != nil {
					r.logger.Error("failed to close plugin during init rollback",
						"plugin", r.all[j].Name(), "error", closeErr)
				}
			}
			return &PluginError{Plugin: p.Name(), Op: "init", Err: err}
		}
	}
	return nil
}

// closeAll closes all plugins in reverse order.
func (r *pluginRegistry) closeAll(ctx context.Context) error {
	var errs error
	for i := len(r.all) - 1; i >= 0; i-- {
		if err := r.all[i].Close(ctx); err != nil {
			errs = multierr.Append(errs, &PluginError{Plugin: r.all[i].Name(), Op: "close", Err: err})
		}
	}
	return errs
}

// PluginError represents an error from a plugin.
type PluginError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *PluginError) Error() string {
	return "plugin " + e.Plugin + " " + e.Op + ": " + e.Err.Error()
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Hook execution helpers

func (r *pluginRegistry) beforeDeliver(ctx context.Context, n *Notification) error {
	for _, h := range r.deliver {
		if err := h.BeforeDeliver(ctx, n); err != nil {
			return &PluginError{Plugin: h.Name(), Op: "BeforeDeliver", Err: err}
		}
	}
	return nil
}

// afterDeliver runs every hook, even after one fails.
func (r *pluginRegistry) afterDeliver(ctx context.Context, n *Notification) error {
	var errs error
	for _, h := range r.deliver {
		if err := h.AfterDeliver(ctx, n); err != nil {
			errs = multierr.Append(errs, &PluginError{Plugin: h.Name(), Op: "AfterDeliver", Err: err})
		}
	}
	return errs
}

// onDeliverHook adapts a callback to DeliveryHook.
type onDeliverHook func(ctx context.Context, n *Notification)

func (onDeliverHook) Name() string                                       { return "on_deliver" }
func (onDeliverHook) Init(context.Context) error                         { return nil }
func (onDeliverHook) Close(context.Context) error                        { return nil }
func (onDeliverHook) BeforeDeliver(context.Context, *Notification) error { return nil }

func (f onDeliverHook) AfterDeliver(ctx context.Context, n *Notification) error {
	f(ctx, n)
	return nil
}
