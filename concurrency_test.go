package mailboxer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/mailboxer/store"
	"github.com/rbaliyan/mailboxer/store/memory"
)

func TestConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithMaxConcurrentDeliveries(4))
	a := user("a")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.NotifyAll(ctx, to(a, user(fmt.Sprintf("u%d", i))), fmt.Sprintf("n%d", i), "body")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent notify: %v", err)
		}
	}

	count, err := svc.CountReceipts(ctx, store.ReceiverIs(a.Ref))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Errorf("expected %d receipts, got %d", n, count)
	}
}

func TestConcurrentReadAndTrash(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	a, b := user("a"), user("b")

	r, err := svc.SendMessage(ctx, a, to(b), "s", "b")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	conv, err := r.Conversation(ctx)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := conv.MarkAsRead(ctx, b); err != nil {
				t.Errorf("mark read: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := conv.MoveToTrash(ctx, b); err != nil {
				t.Errorf("trash: %v", err)
			}
		}()
	}
	wg.Wait()

	read, err := conv.IsRead(ctx, b)
	if err != nil || !read {
		t.Errorf("expected read, got %v %v", read, err)
	}
	trashed, err := conv.IsTrashed(ctx, b)
	if err != nil || !trashed {
		t.Errorf("expected trashed, got %v %v", trashed, err)
	}
}

func TestConcurrentDeletesLeaveNoOrphans(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithReclaimGracePeriod(time.Millisecond))

	const conversations = 10
	participants := []*Contact{user("a"), user("b"), user("c")}

	ids := make([]string, 0, conversations)
	for i := 0; i < conversations; i++ {
		r, err := svc.SendMessage(ctx, participants[0], to(participants[1], participants[2]), "s", "b")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		ids = append(ids, r.ConversationID())
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for _, p := range participants {
			wg.Add(1)
			go func(id string, p *Contact) {
				defer wg.Done()
				conv, err := svc.Conversation(ctx, id)
				if err != nil {
					// Another participant already destroyed it.
					return
				}
				if _, err := conv.MarkAsDeleted(ctx, p); err != nil {
					t.Errorf("delete %s for %s: %v", id, p.Ref, err)
				}
			}(id, p)
		}
	}
	wg.Wait()

	if _, err := svc.ReclaimOrphans(ctx, ReclaimOptions{}); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	for _, id := range ids {
		if _, err := svc.Conversation(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("conversation %s should be destroyed, got %v", id, err)
		}
	}
}

// slowOptOutCount widens the window between OptOut's subscription check
// and its insert.
type slowOptOutCount struct {
	*memory.Store
}

func (s slowOptOutCount) CountOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	n, err := s.Store.CountOptOuts(ctx, conversationID, who)
	time.Sleep(5 * time.Millisecond)
	return n, err
}

func TestConcurrentOptOut(t *testing.T) {
	ctx := context.Background()
	backend := slowOptOutCount{memory.New()}
	svc := setupTestService(t, WithStore(backend))
	a, b := user("a"), user("b")

	r, err := svc.SendMessage(ctx, a, to(b), "s", "b")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	conv, err := r.Conversation(ctx)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}

	const n = 4
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := conv.OptOut(ctx, b)
			if err != nil {
				t.Errorf("opt out: %v", err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for ok := range results {
		if ok {
			created++
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one successful opt out, got %d", created)
	}
	rows, err := backend.Store.CountOptOuts(ctx, conv.ID(), b.MailboxRef())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected one opt-out row, got %d", rows)
	}
}
