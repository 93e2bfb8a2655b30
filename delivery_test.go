package mailboxer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

func TestNotifyAll(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	t.Run("one unread receipt per recipient", func(t *testing.T) {
		recipients := to(user("a"), user("b"), user("c"))
		d, err := svc.NotifyAll(ctx, recipients, "Maintenance", "Tonight at 10")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if len(d.Receipts) != len(recipients) {
			t.Fatalf("expected %d receipts, got %d", len(recipients), len(d.Receipts))
		}
		for i, r := range d.Receipts {
			if r.IsRead() {
				t.Errorf("receipt %d should be unread", i)
			}
			if r.MailboxType() != store.MailboxNone {
				t.Errorf("notification receipt should have no mailbox, got %q", r.MailboxType())
			}
			if r.Receiver() != recipients[i].MailboxRef() {
				t.Errorf("receipt %d receiver = %v, want %v", i, r.Receiver(), recipients[i].MailboxRef())
			}
		}

		n, err := svc.CountReceipts(ctx, store.NotificationIs(d.Notification.ID()))
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if n != int64(len(recipients)) {
			t.Errorf("expected %d stored receipts, got %d", len(recipients), n)
		}
		if d.Receipt() != nil {
			t.Error("Receipt() should be nil for several recipients")
		}
	})

	t.Run("single recipient exposes its receipt", func(t *testing.T) {
		d, err := svc.NotifyAll(ctx, to(user("solo")), "Hi", "There")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if d.Receipt() == nil {
			t.Fatal("expected single receipt")
		}
	})

	t.Run("empty recipient list is not an error", func(t *testing.T) {
		d, err := svc.NotifyAll(ctx, nil, "Nobody", "Home")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if len(d.Receipts) != 0 {
			t.Errorf("expected no receipts, got %d", len(d.Receipts))
		}
		if _, err := svc.Notification(ctx, d.Notification.ID()); err != nil {
			t.Errorf("notification should be stored: %v", err)
		}
	})

	t.Run("options are stored", func(t *testing.T) {
		object := NewRef("order", "42")
		expires := time.Now().Add(time.Hour)
		d, err := svc.NotifyAll(ctx, to(user("a")), "Shipped", "Your order shipped",
			WithObject(object),
			WithSender(user("system")),
			WithNotificationCode("order.shipped"),
			WithAttachment("s3://bucket/label.pdf"),
			WithGlobal(),
			WithExpiry(expires),
		)
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		n, err := svc.Notification(ctx, d.Notification.ID())
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if n.Object() != object {
			t.Errorf("object = %v, want %v", n.Object(), object)
		}
		if n.Sender() != NewRef("user", "system") {
			t.Errorf("sender = %v", n.Sender())
		}
		if n.NotificationCode() != "order.shipped" || n.Attachment() != "s3://bucket/label.pdf" || !n.Global() {
			t.Errorf("unexpected fields: %+v", n.Record())
		}
		if _, ok := n.Expires(); !ok {
			t.Error("expected expiry")
		}
	})

	t.Run("text is cleaned before validation", func(t *testing.T) {
		d, err := svc.NotifyAll(ctx, to(user("a")), "  Hello\x00  ", "Body\x07 ")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if d.Notification.Subject() != "Hello" {
			t.Errorf("subject = %q, want %q", d.Notification.Subject(), "Hello")
		}
		if d.Notification.Body() != "Body" {
			t.Errorf("body = %q, want %q", d.Notification.Body(), "Body")
		}
	})

	t.Run("expired notifications are still delivered", func(t *testing.T) {
		d, err := svc.NotifyAll(ctx, to(user("a")), "Old", "News", WithExpiry(time.Now().Add(-time.Hour)))
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if len(d.Receipts) != 1 {
			t.Errorf("expected 1 receipt, got %d", len(d.Receipts))
		}
	})
}

func TestDuplicateRecipients(t *testing.T) {
	ctx := context.Background()
	a, b := user("a"), user("b")

	perReceiver := func(t *testing.T, svc *Service, id string) map[Ref]int {
		t.Helper()
		rs, err := svc.Receipts(ctx, store.NotificationIs(id), ListOptions{})
		if err != nil {
			t.Fatalf("receipts: %v", err)
		}
		got := make(map[Ref]int)
		for _, r := range rs {
			got[r.Receiver()]++
		}
		return got
	}

	t.Run("message to sender and repeated recipient", func(t *testing.T) {
		var dispatched []Participant
		svc := setupTestService(t, WithDispatcher(DispatcherFunc(func(_ context.Context, _ *Notification, ps []Participant) error {
			dispatched = ps
			return nil
		})))
		sent, err := svc.SendMessage(ctx, a, to(b, b, a), "Hello", "Twice")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		got := perReceiver(t, svc, sent.NotificationID())
		if len(got) != 2 || got[a.MailboxRef()] != 1 || got[b.MailboxRef()] != 1 {
			t.Errorf("expected one receipt each for a and b, got %v", got)
		}
		if sent.MailboxType() != store.MailboxSentbox {
			t.Errorf("sender receipt should be in sentbox, got %q", sent.MailboxType())
		}
		if len(dispatched) != 1 || dispatched[0].MailboxRef() != b.MailboxRef() {
			t.Errorf("expected dispatch to b only, got %v", dispatched)
		}
	})

	t.Run("notification to repeated recipient", func(t *testing.T) {
		svc := setupTestService(t)
		d, err := svc.NotifyAll(ctx, to(b, a, b), "Ping", "Once")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if len(d.Receipts) != 2 {
			t.Errorf("expected 2 receipts, got %d", len(d.Receipts))
		}
		got := perReceiver(t, svc, d.Notification.ID())
		if got[a.MailboxRef()] != 1 || got[b.MailboxRef()] != 1 {
			t.Errorf("expected one receipt each, got %v", got)
		}
	})
}

func TestDeliveryAllOrNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		recipients []Participant
		subject    string
		body       string
		field      string
	}{
		{name: "nil recipient", recipients: to(user("a"), nil, user("c")), subject: "s", body: "b", field: "receipts[1].receiver"},
		{name: "zero ref recipient", recipients: to(user("a"), &Contact{}), subject: "s", body: "b", field: "receipts[1].receiver"},
		{name: "empty subject", recipients: to(user("a")), subject: "  ", body: "b", field: fieldSubject},
		{name: "empty body", recipients: to(user("a")), subject: "s", body: "", field: fieldBody},
		{name: "subject too long", recipients: to(user("a")), subject: strings.Repeat("x", DefaultMaxSubjectLength+1), body: "b", field: fieldSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dispatched bool
			svc := setupTestService(t, WithDispatcher(DispatcherFunc(func(context.Context, *Notification, []Participant) error {
				dispatched = true
				return nil
			})))

			n := svc.NewNotification(tt.recipients, tt.subject, tt.body)
			d, err := n.Deliver(ctx)
			if d != nil {
				t.Fatal("expected no delivery")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			ve, ok := IsValidationError(err)
			if !ok || !ve.Has(tt.field) {
				t.Errorf("expected failure on %s, got %v", tt.field, err)
			}

			count, err := svc.CountReceipts(ctx, nil)
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 0 {
				t.Errorf("expected zero receipts, got %d", count)
			}
			if _, err := svc.Notification(ctx, n.ID()); !errors.Is(err, ErrNotFound) {
				t.Errorf("notification should not be stored, got %v", err)
			}
			if dispatched {
				t.Error("dispatcher must not run for an invalid delivery")
			}
			if len(n.PendingRecipients()) != len(tt.recipients) {
				t.Error("recipients should be kept after a failed delivery")
			}
		})
	}
}

func TestDeliverTwice(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	n := svc.NewNotification(to(user("a")), "s", "b")
	if _, err := n.Deliver(ctx); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if len(n.PendingRecipients()) != 0 {
		t.Error("recipients should be cleared after delivery")
	}
	if !n.Delivered() {
		t.Error("expected delivered")
	}
	if _, err := n.Deliver(ctx); !errors.Is(err, ErrAlreadyDelivered) {
		t.Errorf("expected ErrAlreadyDelivered, got %v", err)
	}

	count, _ := svc.CountReceipts(ctx, store.NotificationIs(n.ID()))
	if count != 1 {
		t.Errorf("expected 1 receipt, got %d", count)
	}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("receives notification and original recipients", func(t *testing.T) {
		var got []Participant
		var gotID string
		svc := setupTestService(t, WithDispatcher(DispatcherFunc(func(_ context.Context, n *Notification, rs []Participant) error {
			gotID = n.ID()
			got = rs
			return nil
		})))

		recipients := to(user("a"), user("b"))
		d, err := svc.NotifyAll(ctx, recipients, "s", "b")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if gotID != d.Notification.ID() {
			t.Errorf("dispatched %q, want %q", gotID, d.Notification.ID())
		}
		if len(got) != 2 {
			t.Errorf("expected 2 dispatched recipients, got %d", len(got))
		}
	})

	t.Run("failure keeps receipts and reaches handler", func(t *testing.T) {
		var handled *DispatchError
		svc := setupTestService(t,
			WithDispatcher(DispatcherFunc(func(context.Context, *Notification, []Participant) error {
				return errors.New("smtp down")
			})),
			WithDispatchFailureHandler(func(err *DispatchError) { handled = err }),
		)

		d, err := svc.NotifyAll(ctx, to(user("a")), "s", "b")
		if err != nil {
			t.Fatalf("dispatch failure must not fail delivery: %v", err)
		}
		if handled == nil || handled.NotificationID != d.Notification.ID() {
			t.Fatalf("expected dispatch failure for %s, got %+v", d.Notification.ID(), handled)
		}
		if handled.Recipients != 1 {
			t.Errorf("expected 1 recipient in error, got %d", handled.Recipients)
		}
		count, _ := svc.CountReceipts(ctx, nil)
		if count != 1 {
			t.Errorf("expected receipt to survive dispatch failure, got %d", count)
		}
	})

	t.Run("panicking dispatcher is reported", func(t *testing.T) {
		var handled *DispatchError
		svc := setupTestService(t,
			WithDispatcher(DispatcherFunc(func(context.Context, *Notification, []Participant) error {
				panic("nil transport")
			})),
			WithDispatchFailureHandler(func(err *DispatchError) { handled = err }),
		)

		n := svc.NewNotification(to(user("a")), "s", "b")
		d, err := n.Deliver(ctx)
		if err != nil || d == nil {
			t.Fatalf("dispatch panic must not fail delivery: %v", err)
		}
		if handled == nil || !strings.Contains(handled.Error(), "nil transport") {
			t.Fatalf("expected reported panic, got %+v", handled)
		}
		if !n.Delivered() || len(n.PendingRecipients()) != 0 {
			t.Error("handle should be delivered with recipients cleared")
		}
		if _, err := n.Deliver(ctx); !errors.Is(err, ErrAlreadyDelivered) {
			t.Errorf("expected ErrAlreadyDelivered, got %v", err)
		}
	})

	t.Run("send mail disabled", func(t *testing.T) {
		called := false
		svc := setupTestService(t, WithDispatcher(DispatcherFunc(func(context.Context, *Notification, []Participant) error {
			called = true
			return nil
		})))
		if _, err := svc.NotifyAll(ctx, to(user("a")), "s", "b", WithSendMail(false)); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if called {
			t.Error("dispatcher should not run when send mail is disabled")
		}
	})
}

type recordingHook struct {
	mu     sync.Mutex
	before []string
	after  []string
	veto   error
}

func (h *recordingHook) Name() string                { return "recording" }
func (h *recordingHook) Init(context.Context) error  { return nil }
func (h *recordingHook) Close(context.Context) error { return nil }

func (h *recordingHook) BeforeDeliver(_ context.Context, n *Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = append(h.before, n.Subject())
	return h.veto
}

func (h *recordingHook) AfterDeliver(_ context.Context, n *Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = append(h.after, n.ID())
	return nil
}

func TestDeliveryHooks(t *testing.T) {
	ctx := context.Background()

	t.Run("hooks run around delivery", func(t *testing.T) {
		hook := &recordingHook{}
		var onDeliver int
		svc := setupTestService(t,
			WithPlugin(hook),
			WithOnDeliver(func(context.Context, *Notification) { onDeliver++ }),
		)
		d, err := svc.NotifyAll(ctx, to(user("a")), "hooked", "b")
		if err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if len(hook.before) != 1 || hook.before[0] != "hooked" {
			t.Errorf("unexpected before calls: %v", hook.before)
		}
		if len(hook.after) != 1 || hook.after[0] != d.Notification.ID() {
			t.Errorf("unexpected after calls: %v", hook.after)
		}
		if onDeliver != 1 {
			t.Errorf("expected on-deliver callback once, got %d", onDeliver)
		}
	})

	t.Run("before hook can veto", func(t *testing.T) {
		hook := &recordingHook{veto: errors.New("blocked")}
		svc := setupTestService(t, WithPlugin(hook))
		_, err := svc.NotifyAll(ctx, to(user("a")), "s", "b")
		var pe *PluginError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PluginError, got %v", err)
		}
		count, _ := svc.CountReceipts(ctx, nil)
		if count != 0 {
			t.Errorf("vetoed delivery stored %d receipts", count)
		}
	})
}

func TestNotificationQueries(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a, b := user("a"), user("b")

	first, err := svc.NotifyAll(ctx, to(a, b), "first", "body")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if _, err := svc.NotifyAll(ctx, to(b), "second", "body", WithGlobal()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if _, err := svc.SendMessage(ctx, a, to(b), "chat", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	t.Run("by recipient", func(t *testing.T) {
		got, err := svc.Notifications(ctx, NotificationQuery{Recipient: a, Kind: store.KindNotification}, ListOptions{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || got[0].ID() != first.Notification.ID() {
			t.Errorf("expected only the first notification, got %d", len(got))
		}
	})

	t.Run("unread narrows receipts", func(t *testing.T) {
		if _, err := first.Notification.MarkAsRead(ctx, b); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		got, err := svc.Notifications(ctx, NotificationQuery{Recipient: b, Unread: true, Kind: store.KindNotification}, ListOptions{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || got[0].Subject() != "second" {
			t.Errorf("expected only the second notification unread")
		}
	})

	t.Run("global", func(t *testing.T) {
		global := true
		got, err := svc.Notifications(ctx, NotificationQuery{Global: &global}, ListOptions{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 || !got[0].Global() {
			t.Errorf("expected one global notification, got %d", len(got))
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		got, err := svc.Notifications(ctx, NotificationQuery{Recipient: user("nobody")}, ListOptions{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected nothing, got %d", len(got))
		}
	})
}

func TestNotificationParticipantState(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a := user("a")

	d, err := svc.NotifyAll(ctx, to(a), "s", "b")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	n := d.Notification

	if unread, _ := n.IsUnread(ctx, a); !unread {
		t.Error("expected unread")
	}
	if changed, err := n.MarkAsRead(ctx, a); err != nil || !changed {
		t.Fatalf("mark read: changed=%v err=%v", changed, err)
	}
	if read, _ := n.IsRead(ctx, a); !read {
		t.Error("expected read")
	}
	if _, err := n.MoveToTrash(ctx, a); err != nil {
		t.Fatalf("trash failed: %v", err)
	}
	if trashed, _ := n.IsTrashed(ctx, a); !trashed {
		t.Error("expected trashed")
	}
	if _, err := n.Untrash(ctx, a); err != nil {
		t.Fatalf("untrash failed: %v", err)
	}
	if _, err := n.MarkAsDeleted(ctx, a); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted, _ := n.IsDeleted(ctx, a); !deleted {
		t.Error("expected deleted")
	}

	t.Run("unrelated participant", func(t *testing.T) {
		r, err := n.ReceiptFor(ctx, user("z"))
		if err != nil || r != nil {
			t.Errorf("expected no receipt, got %v, %v", r, err)
		}
		changed, err := n.MarkAsRead(ctx, user("z"))
		if err != nil || changed {
			t.Errorf("expected no change, got %v, %v", changed, err)
		}
	})
}

func TestDeleteNotification(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	d, err := svc.NotifyAll(ctx, to(user("a"), user("b")), "s", "b")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if err := svc.DeleteNotification(ctx, d.Notification.ID()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	count, _ := svc.CountReceipts(ctx, nil)
	if count != 0 {
		t.Errorf("receipts should cascade, %d left", count)
	}
	if err := svc.DeleteNotification(ctx, d.Notification.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
