package mailboxer

import (
	"context"
	"fmt"
)

// Dispatcher performs out-of-band delivery (email, push, an outbox) of a
// delivered notification. It runs synchronously after persistence; its
// errors never undo a delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification, recipients []Participant) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, n *Notification, recipients []Participant) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, n *Notification, recipients []Participant) error {
	return f(ctx, n, recipients)
}

// dispatch invokes the configured dispatcher and reports failures to the
// dispatch failure handler.
func (s *Service) dispatch(ctx context.Context, n *Notification, recipients []Participant) {
	d := s.opts.dispatcher
	if d == nil {
		return
	}
	err := safeDispatch(ctx, d, n, recipients)
	if err == nil {
		return
	}
	s.otel.recordDispatchFailure(ctx)
	de := &DispatchError{NotificationID: n.ID(), Recipients: len(recipients), Err: err}
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("dispatch failure handler panicked", "panic", r)
			}
		}()
		s.opts.onDispatchFailure(de)
	}()
}

// safeDispatch turns a dispatcher panic into an error. The delivery is
// already persisted at this point and must still complete.
func safeDispatch(ctx context.Context, d Dispatcher, n *Notification, recipients []Participant) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panicked: %v", r)
		}
	}()
	return d.Dispatch(ctx, n, recipients)
}
