package mailboxer

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/mailboxer/store"
)

func TestReceiptReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	d, err := svc.NotifyAll(ctx, to(user("a")), "s", "b")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	r := d.Receipt()
	original := r.Record()

	for i := 0; i < 2; i++ {
		if err := r.MarkAsRead(ctx); err != nil {
			t.Fatalf("mark read #%d: %v", i+1, err)
		}
		if !r.IsRead() {
			t.Errorf("expected read after mark #%d", i+1)
		}
	}
	for i := 0; i < 2; i++ {
		if err := r.MarkAsUnread(ctx); err != nil {
			t.Fatalf("mark unread #%d: %v", i+1, err)
		}
	}

	stored, err := svc.Receipt(ctx, r.ID())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := stored.Record()
	if got.IsRead != original.IsRead || got.Trashed != original.Trashed ||
		got.Deleted != original.Deleted || got.MailboxType != original.MailboxType {
		t.Errorf("state not restored: got %+v, want %+v", got, original)
	}
}

func TestReceiptMutators(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	sent, err := svc.SendMessage(ctx, user("a"), to(user("b")), "s", "b")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	tests := []struct {
		name  string
		apply func(*Receipt) error
		check func(*store.Receipt) bool
	}{
		{"trash", func(r *Receipt) error { return r.MoveToTrash(ctx) }, func(r *store.Receipt) bool { return r.Trashed }},
		{"untrash", func(r *Receipt) error { return r.Untrash(ctx) }, func(r *store.Receipt) bool { return !r.Trashed }},
		{"delete", func(r *Receipt) error { return r.MarkAsDeleted(ctx) }, func(r *store.Receipt) bool { return r.Deleted }},
		{"undelete", func(r *Receipt) error { return r.MarkAsNotDeleted(ctx) }, func(r *store.Receipt) bool { return !r.Deleted }},
		{"move to inbox untrashes", func(r *Receipt) error {
			if err := r.MoveToTrash(ctx); err != nil {
				return err
			}
			return r.MoveToInbox(ctx)
		}, func(r *store.Receipt) bool { return r.MailboxType == store.MailboxInbox && !r.Trashed }},
		{"move to sentbox untrashes", func(r *Receipt) error {
			if err := r.MoveToTrash(ctx); err != nil {
				return err
			}
			return r.MoveToSentbox(ctx)
		}, func(r *store.Receipt) bool { return r.MailboxType == store.MailboxSentbox && !r.Trashed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.apply(sent); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !tt.check(sent.Record()) {
				t.Errorf("handle state wrong: %+v", sent.Record())
			}
			stored, err := svc.Receipt(ctx, sent.ID())
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if !tt.check(stored.Record()) {
				t.Errorf("stored state wrong: %+v", stored.Record())
			}
		})
	}
}

func TestReceiptOfDeletedNotification(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	d, _ := svc.NotifyAll(ctx, to(user("a")), "s", "b")
	r := d.Receipt()
	if err := svc.DeleteNotification(ctx, d.Notification.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.MarkAsRead(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Receipt(ctx, r.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkUpdateStaysInFilter(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a, b := user("a"), user("b")

	for i := 0; i < 3; i++ {
		if _, err := svc.NotifyAll(ctx, to(a, b), "s", "b"); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	n, err := svc.UpdateReceipts(ctx, store.ReceiverIs(a.MailboxRef()), ActionMarkRead)
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 updated, got %d", n)
	}
	bRead, _ := svc.CountReceipts(ctx, store.Join(store.ReceiverIs(b.MailboxRef()), store.IsRead()))
	if bRead != 0 {
		t.Errorf("B's receipts must not change, %d read", bRead)
	}

	t.Run("empty filter is rejected", func(t *testing.T) {
		if _, err := svc.UpdateReceipts(ctx, nil, ActionMarkRead); !errors.Is(err, ErrFilterInvalid) {
			t.Errorf("expected ErrFilterInvalid, got %v", err)
		}
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		if _, err := store.ReceiptFilter("colour").Equal("red"); !errors.Is(err, store.ErrFilterInvalid) {
			t.Errorf("expected ErrFilterInvalid, got %v", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		if _, err := svc.UpdateReceipts(ctx, store.ReceiverIs(a.MailboxRef()), ReceiptAction("explode")); err == nil {
			t.Error("expected error for unknown action")
		}
	})
}

func TestMarkReceipts(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a, b := user("a"), user("b")

	d1, _ := svc.NotifyAll(ctx, to(a, b), "one", "b")
	d2, _ := svc.NotifyAll(ctx, to(a), "two", "b")

	ids := []string{d1.Receipts[0].ID(), d1.Receipts[1].ID(), d2.Receipts[0].ID()}
	n, err := svc.MarkReceipts(ctx, a, ActionTrash, ids...)
	if err != nil {
		t.Fatalf("mark receipts: %v", err)
	}
	if n != 2 {
		t.Errorf("only A's receipts should change, got %d", n)
	}

	if n, _ := svc.MarkReceipts(ctx, nil, ActionTrash, ids...); n != 0 {
		t.Errorf("nil participant should be a no-op, got %d", n)
	}
	if n, _ := svc.MarkReceipts(ctx, a, ActionTrash); n != 0 {
		t.Errorf("no ids should be a no-op, got %d", n)
	}
}

func TestReceiptsQuery(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a := user("a")

	for _, s := range []string{"one", "two", "three"} {
		if _, err := svc.NotifyAll(ctx, to(a), s, "b"); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	asc, err := svc.Receipts(ctx, store.ReceiverIs(a.MailboxRef()), ListOptions{SortOrder: SortAsc})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(asc) != 3 {
		t.Fatalf("expected 3, got %d", len(asc))
	}
	for i := 1; i < len(asc); i++ {
		if asc[i].CreatedAt().Before(asc[i-1].CreatedAt()) {
			t.Error("expected ascending order")
		}
	}

	paged, _ := svc.Receipts(ctx, store.ReceiverIs(a.MailboxRef()), ListOptions{Limit: 2, Offset: 2})
	if len(paged) != 1 {
		t.Errorf("expected 1 on the second page, got %d", len(paged))
	}
}

func TestReceiptActionUpdate(t *testing.T) {
	for _, a := range []ReceiptAction{
		ActionMarkRead, ActionMarkUnread, ActionTrash, ActionUntrash,
		ActionDelete, ActionUndelete, ActionMoveToInbox, ActionMoveToSentbox,
	} {
		u, err := a.Update()
		if err != nil {
			t.Errorf("%s: %v", a, err)
			continue
		}
		if u.IsEmpty() {
			t.Errorf("%s produced an empty update", a)
		}
	}
}
