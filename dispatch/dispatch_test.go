package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/dispatch"
	"github.com/rbaliyan/mailboxer/dispatch/dispatchtest"
	"github.com/rbaliyan/mailboxer/retry"
	"github.com/rbaliyan/mailboxer/store/memory"
)

type counting struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (c *counting) Dispatch(context.Context, *mailboxer.Notification, []mailboxer.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Write(_ context.Context, key string, body []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[key] = body
	return nil
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", "a@example.com"))

	t.Run("runs every dispatcher", func(t *testing.T) {
		first := &counting{errs: []error{errors.New("smtp down")}}
		second := &counting{}
		third := &counting{errs: []error{errors.New("push down")}}

		err := dispatch.Multi(first, nil, second, third).Dispatch(ctx, n, rs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp down")
		assert.Contains(t, err.Error(), "push down")
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
		assert.Equal(t, 1, third.calls)
	})

	t.Run("no dispatchers", func(t *testing.T) {
		assert.NoError(t, dispatch.Multi().Dispatch(ctx, n, rs))
	})
}

func TestRetrying(t *testing.T) {
	ctx := context.Background()
	n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", "a@example.com"))
	cfg := retry.Config{Attempts: 3, InitialBackoff: time.Millisecond}

	t.Run("recovers from transient failure", func(t *testing.T) {
		d := &counting{errs: []error{errors.New("timeout")}}
		require.NoError(t, dispatch.Retrying(d, cfg).Dispatch(ctx, n, rs))
		assert.Equal(t, 2, d.calls)
	})

	t.Run("stops on permanent failure", func(t *testing.T) {
		d := &counting{errs: []error{retry.Permanent(errors.New("bad address"))}}
		err := dispatch.Retrying(d, cfg).Dispatch(ctx, n, rs)
		require.Error(t, err)
		assert.Equal(t, 1, d.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		boom := errors.New("boom")
		d := &counting{errs: []error{boom, boom, boom, boom}}
		err := dispatch.Retrying(d, cfg).Dispatch(ctx, n, rs)
		assert.ErrorIs(t, err, retry.ErrExhausted)
		assert.Equal(t, 3, d.calls)
	})
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()

	t.Run("writes envelope", func(t *testing.T) {
		n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", "a@example.com"))
		w := &memWriter{}
		require.NoError(t, dispatch.Outbox(w, "mail").Dispatch(ctx, n, rs))
		require.Len(t, w.objects, 1)
		for key, body := range w.objects {
			assert.Contains(t, key, n.ID())
			assert.Contains(t, string(body), "a@example.com")
		}
	})

	t.Run("skips when nobody is reachable", func(t *testing.T) {
		n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", ""))
		w := &memWriter{err: errors.New("should not be called")}
		require.NoError(t, dispatch.Outbox(w, "mail").Dispatch(ctx, n, rs))
	})

	t.Run("service reports write failure without failing delivery", func(t *testing.T) {
		w := &memWriter{err: errors.New("bucket gone")}
		var reported *mailboxer.DispatchError
		svc, err := mailboxer.NewService(
			mailboxer.WithStore(memory.New()),
			mailboxer.WithEventTransport(channel.New()),
			mailboxer.WithDispatcher(dispatch.Outbox(w, "mail")),
			mailboxer.WithDispatchFailureHandler(func(e *mailboxer.DispatchError) { reported = e }),
		)
		require.NoError(t, err)
		require.NoError(t, svc.Connect(ctx))
		t.Cleanup(func() { _ = svc.Close(ctx) })

		d, err := svc.NotifyAll(ctx, []mailboxer.Participant{dispatchtest.Contact("a", "a@example.com")}, "s", "b")
		require.NoError(t, err)
		require.NotNil(t, reported)
		assert.Equal(t, d.Notification.ID(), reported.NotificationID)
	})
}
