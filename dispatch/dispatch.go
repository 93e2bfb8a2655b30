package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/retry"
)

// Multi fans a dispatch out to every non-nil dispatcher in order. All of
// them run; their errors are combined.
func Multi(dispatchers ...mailboxer.Dispatcher) mailboxer.Dispatcher {
	list := make([]mailboxer.Dispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			list = append(list, d)
		}
	}
	return multi(list)
}

type multi []mailboxer.Dispatcher

func (m multi) Dispatch(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
	var errs error
	for i, d := range m {
		if err := d.Dispatch(ctx, n, recipients); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispatcher %d: %w", i, err))
		}
	}
	return errs
}

// Retrying wraps d so that failed dispatches are retried according to cfg.
// Return retry.Permanent from d to stop early.
func Retrying(d mailboxer.Dispatcher, cfg retry.Config) mailboxer.Dispatcher {
	return mailboxer.DispatcherFunc(func(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
		return retry.Do(ctx, cfg, func(ctx context.Context) error {
			return d.Dispatch(ctx, n, recipients)
		})
	})
}

// Writer stores one encoded envelope under key.
type Writer interface {
	Write(ctx context.Context, key string, body []byte) error
}

// Outbox builds an envelope for each dispatch and hands it to w. Dispatches
// where no recipient has an address write nothing.
func Outbox(w Writer, prefix string) mailboxer.Dispatcher {
	return mailboxer.DispatcherFunc(func(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
		env := NewEnvelope(ctx, n, recipients)
		if env.Empty() {
			return nil
		}
		body, err := env.Marshal()
		if err != nil {
			return retry.Permanent(err)
		}
		return w.Write(ctx, env.ObjectKey(prefix), body)
	})
}
