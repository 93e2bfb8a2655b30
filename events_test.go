package mailboxer

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/event/v3"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/mailboxer/store/memory"
)

func TestRedisEventTransport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	svc, err := NewService(WithStore(memory.New()), WithRedisClient(client))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	if svc.Events() == nil {
		t.Fatal("events should be available after connect")
	}
	r, err := svc.SendMessage(ctx, user("a"), to(user("b")), "hello", "over redis")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	conv, err := r.Conversation(ctx)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if _, err := conv.MarkAsRead(ctx, user("b")); err != nil {
		t.Errorf("mark read: %v", err)
	}
}

func TestEventPublishFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var mu sync.Mutex
	var failed []string
	ctx := context.Background()
	svc, err := NewService(
		WithStore(memory.New()),
		WithRedisClient(client),
		WithEventPublishFailureHandler(func(name string, err error) {
			mu.Lock()
			failed = append(failed, name)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	// With redis gone every publish fails; deliveries must still succeed.
	mr.Close()

	d, err := svc.NotifyAll(ctx, to(user("a")), "still", "delivered")
	if err != nil {
		t.Fatalf("notify should survive event failures: %v", err)
	}
	if _, err := svc.Notification(ctx, d.Notification.ID()); err != nil {
		t.Errorf("notification not persisted: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	t.Logf("failed publishes: %v", failed)
}

func TestPublishNilEvent(t *testing.T) {
	svc := setupTestService(t)
	var ev event.Event[DeliveredEvent]
	if err := publish(context.Background(), svc, ev, EventNameNotificationDelivered, "n1", DeliveredEvent{}); err != nil {
		t.Errorf("publishing on a nil event should be a no-op, got %v", err)
	}
}
