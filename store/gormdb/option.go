package gormdb

import (
	"log/slog"
	"time"
)

// DefaultTimeout bounds every store call.
const DefaultTimeout = 10 * time.Second

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the GORM store.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTimeout bounds each store call. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
