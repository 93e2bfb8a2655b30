package mailboxer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/rbaliyan/mailboxer/store/memory"
)

// tickingClock advances by a millisecond on every read so records created
// in sequence get distinct, ordered timestamps.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// advance moves the clock forward by d.
func (c *tickingClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// setupTestService creates a connected service backed by the memory store.
func setupTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithStore(memory.New()),
		WithEventTransport(channel.New()),
		withClock(newTickingClock().Now),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func user(id string) *Contact {
	return &Contact{Ref: NewRef("user", id), Email: id + "@example.com"}
}

func to(ps ...Participant) []Participant { return ps }

func TestNewService(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewService()
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("creates service with store", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatal("expected non-nil service")
		}
		if svc.IsConnected() {
			t.Error("new service should not be connected")
		}
	})
}

func TestServiceLifecycle(t *testing.T) {
	t.Run("connect and close", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ctx := context.Background()

		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if svc.Events() == nil {
			t.Error("expected events after connect")
		}

		// Double connect should fail
		if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}

		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		// Double close should be safe
		if err := svc.Close(ctx); err != nil {
			t.Errorf("second close should not error, got %v", err)
		}
	})

	t.Run("operations before connect", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ctx := context.Background()

		_, err = svc.NotifyAll(ctx, to(user("a")), "s", "b")
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if _, err := svc.Conversation(ctx, "x"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("separate services get separate buses", func(t *testing.T) {
		a := setupTestService(t)
		b := setupTestService(t)
		if a.eventBus == b.eventBus {
			t.Error("expected distinct event buses")
		}
	})
}

func TestGracefulShutdown(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})

	slow := DispatcherFunc(func(ctx context.Context, n *Notification, _ []Participant) error {
		close(started)
		<-release
		return nil
	})
	svc, err := NewService(
		WithStore(memory.New()),
		WithDispatcher(slow),
		WithShutdownTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.NotifyAll(ctx, to(user("a")), "subject", "body")
		done <- err
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- svc.Close(ctx) }()

	select {
	case <-closed:
		t.Fatal("close returned before in-flight delivery finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("delivery failed: %v", err)
	}
	if err := <-closed; err != nil {
		t.Errorf("close failed: %v", err)
	}
}
