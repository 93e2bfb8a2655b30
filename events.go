package mailboxer

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for mailboxer events.
const (
	EventNameNotificationDelivered = "mailboxer.notification.delivered"
	EventNameMessageDelivered      = "mailboxer.message.delivered"
	EventNameReceiptsUpdated       = "mailboxer.receipts.updated"
	EventNameConversationDestroyed = "mailboxer.conversation.destroyed"
	EventNameParticipantAdded      = "mailboxer.participant.added"
	EventNameParticipantOptedOut   = "mailboxer.participant.opted_out"
	EventNameParticipantOptedIn    = "mailboxer.participant.opted_in"
)

// DeliveredEvent is published after a notification or message is persisted.
type DeliveredEvent struct {
	NotificationID string    `json:"notification_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Sender         Ref       `json:"sender"`
	Recipients     []Ref     `json:"recipients"`
	Subject        string    `json:"subject"`
	Reply          bool      `json:"reply,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// ReceiptsUpdatedEvent is published after receipts change state.
// Participant, NotificationID and ConversationID are set when the update
// was scoped to them.
type ReceiptsUpdatedEvent struct {
	Action         ReceiptAction `json:"action"`
	Participant    Ref           `json:"participant"`
	NotificationID string        `json:"notification_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Count          int64         `json:"count"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ConversationDestroyedEvent is published when an orphaned conversation is
// destroyed.
type ConversationDestroyedEvent struct {
	ConversationID string    `json:"conversation_id"`
	DestroyedAt    time.Time `json:"destroyed_at"`
}

// ParticipantEvent is published when a participant is added to a
// conversation or changes its subscription.
type ParticipantEvent struct {
	ConversationID string    `json:"conversation_id"`
	Participant    Ref       `json:"participant"`
	At             time.Time `json:"at"`
}

// ServiceEvents holds the events of one service, bound to its own bus.
type ServiceEvents struct {
	NotificationDelivered event.Event[DeliveredEvent]
	MessageDelivered      event.Event[DeliveredEvent]
	ReceiptsUpdated       event.Event[ReceiptsUpdatedEvent]
	ConversationDestroyed event.Event[ConversationDestroyedEvent]
	ParticipantAdded      event.Event[ParticipantEvent]
	ParticipantOptedOut   event.Event[ParticipantEvent]
	ParticipantOptedIn    event.Event[ParticipantEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		NotificationDelivered: event.New[DeliveredEvent](namePrefix + "." + EventNameNotificationDelivered),
		MessageDelivered:      event.New[DeliveredEvent](namePrefix + "." + EventNameMessageDelivered),
		ReceiptsUpdated:       event.New[ReceiptsUpdatedEvent](namePrefix + "." + EventNameReceiptsUpdated),
		ConversationDestroyed: event.New[ConversationDestroyedEvent](namePrefix + "." + EventNameConversationDestroyed),
		ParticipantAdded:      event.New[ParticipantEvent](namePrefix + "." + EventNameParticipantAdded),
		ParticipantOptedOut:   event.New[ParticipantEvent](namePrefix + "." + EventNameParticipantOptedOut),
		ParticipantOptedIn:    event.New[ParticipantEvent](namePrefix + "." + EventNameParticipantOptedIn),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.NotificationDelivered); err != nil {
		return fmt.Errorf("register NotificationDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDelivered); err != nil {
		return fmt.Errorf("register MessageDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.ReceiptsUpdated); err != nil {
		return fmt.Errorf("register ReceiptsUpdated: %w", err)
	}
	if err := event.Register(ctx, bus, events.ConversationDestroyed); err != nil {
		return fmt.Errorf("register ConversationDestroyed: %w", err)
	}
	if err := event.Register(ctx, bus, events.ParticipantAdded); err != nil {
		return fmt.Errorf("register ParticipantAdded: %w", err)
	}
	if err := event.Register(ctx, bus, events.ParticipantOptedOut); err != nil {
		return fmt.Errorf("register ParticipantOptedOut: %w", err)
	}
	if err := event.Register(ctx, bus, events.ParticipantOptedIn); err != nil {
		return fmt.Errorf("register ParticipantOptedIn: %w", err)
	}
	return nil
}

// publish sends data on ev. Failures go to the failure handler and are
// returned as EventPublishError only when event errors are fatal.
func publish[T any](ctx context.Context, s *Service, ev event.Event[T], name, entityID string, data T) error {
	if ev == nil {
		return nil
	}
	err := ev.Publish(ctx, data)
	if err == nil {
		return nil
	}
	if s.opts.eventErrorsFatal {
		return &EventPublishError{Event: name, EntityID: entityID, Err: err}
	}
	s.opts.safeEventPublishFailure(name, err)
	return nil
}
