package mailboxer

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/mailboxer/store/memory"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a, b := user("a"), user("b")

	t.Run("empty mailbox", func(t *testing.T) {
		st, err := svc.Stats(ctx, a)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if *st != (Stats{}) {
			t.Errorf("expected zero stats, got %+v", st)
		}
	})

	if _, err := svc.SendMessage(ctx, a, to(b), "m1", "b"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.SendMessage(ctx, b, to(a), "m2", "b"); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := svc.NotifyAll(ctx, to(a), "n1", "b")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	st, err := svc.Stats(ctx, a)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{
		Receipts:            3,
		Unread:              2,
		UnreadMessages:      1,
		UnreadNotifications: 1,
		Inbox:               1,
		Sentbox:             1,
		Trash:               0,
	}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	if err := d.Receipt().MoveToTrash(ctx); err != nil {
		t.Fatalf("trash: %v", err)
	}
	st, _ = svc.Stats(ctx, a)
	if st.Trash != 1 || st.UnreadNotifications != 0 {
		t.Errorf("after trash: %+v", *st)
	}

	t.Run("nil participant", func(t *testing.T) {
		st, err := svc.Stats(ctx, nil)
		if err != nil || *st != (Stats{}) {
			t.Errorf("expected zero stats, got %+v, %v", st, err)
		}
	})
}

func TestStatsNotConnected(t *testing.T) {
	svc, err := NewService(WithStore(memory.New()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if _, err := svc.Stats(context.Background(), user("a")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
