// Package dispatchtest produces delivered notifications for dispatcher tests.
package dispatchtest

import (
	"context"
	"testing"

	"github.com/rbaliyan/event/v3/transport/channel"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/store/memory"
)

// Contact returns a user participant with an address, or without one when
// email is empty.
func Contact(id, email string) *mailboxer.Contact {
	return &mailboxer.Contact{Ref: mailboxer.NewRef("user", id), Email: email}
}

// Notify delivers a notification to recipients through an in-memory service
// and returns what its dispatcher received.
func Notify(t testing.TB, subject string, recipients ...mailboxer.Participant) (*mailboxer.Notification, []mailboxer.Participant) {
	t.Helper()
	var (
		got  *mailboxer.Notification
		sent []mailboxer.Participant
	)
	capture := mailboxer.DispatcherFunc(func(_ context.Context, n *mailboxer.Notification, rs []mailboxer.Participant) error {
		got, sent = n, rs
		return nil
	})
	svc, err := mailboxer.NewService(
		mailboxer.WithStore(memory.New()),
		mailboxer.WithEventTransport(channel.New()),
		mailboxer.WithDispatcher(capture),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(ctx) })

	if _, err := svc.NotifyAll(ctx, recipients, subject, "body of "+subject); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got == nil {
		t.Fatal("dispatcher was not invoked")
	}
	return got, sent
}
