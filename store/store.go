// Package store defines the persistence contract for notifications, receipts,
// conversations and opt-outs.
//
// Store implementations rely on the database's own atomicity rather than
// distributed locks:
//   - CreateDelivery writes a conversation, a notification and its receipts
//     in one transaction where the backend supports it.
//   - UpdateReceipts is a single multi-row update. Overlapping bulk updates
//     resolve as last-write-wins.
//   - DeleteConversation removes the conversation's messages, their receipts
//     and its opt-outs. Deleting a missing conversation returns ErrNotFound so
//     callers can treat a lost race as success.
package store

import (
	"context"
	"time"
)

// Store is the complete persistence interface.
type Store interface {
	// Connect establishes connection to the storage backend.
	Connect(ctx context.Context) error
	// Close closes the connection.
	Close(ctx context.Context) error

	DeliveryWriter
	NotificationStore
	ReceiptStore
	ConversationStore
	OptOutStore
}

// DeliveryWriter persists the output of the delivery pipeline.
type DeliveryWriter interface {
	// CreateDelivery persists d.Conversation (when non-nil), d.Notification
	// and every receipt. IDs are assigned by the caller.
	CreateDelivery(ctx context.Context, d *Delivery) error
}

// NotificationStore reads and maintains notifications and messages.
type NotificationStore interface {
	GetNotification(ctx context.Context, id string) (*Notification, error)
	FindNotifications(ctx context.Context, q NotificationQuery, opts ListOptions) ([]*Notification, error)
	// ListMessages returns the messages of a conversation ordered by creation time.
	ListMessages(ctx context.Context, conversationID string, order SortOrder) ([]*Notification, error)
	// SetNotificationExpiry sets or clears (nil) the expiry.
	SetNotificationExpiry(ctx context.Context, id string, expires *time.Time) error
	// DeleteNotification deletes a notification and its receipts.
	DeleteNotification(ctx context.Context, id string) error
}

// ReceiptStore reads and updates receipts.
type ReceiptStore interface {
	// CreateReceipt persists a single receipt, keeping its timestamps.
	CreateReceipt(ctx context.Context, r *Receipt) error
	FindReceipts(ctx context.Context, filters []Filter, opts ListOptions) ([]*Receipt, error)
	CountReceipts(ctx context.Context, filters []Filter) (int64, error)
	// UpdateReceipts applies u to every receipt matching filters and returns
	// the number of receipts matched. Empty filters are rejected with
	// ErrFilterInvalid.
	UpdateReceipts(ctx context.Context, filters []Filter, u ReceiptUpdate) (int64, error)
}

// ConversationStore reads and maintains conversations.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns the given conversations, or all of them when
	// ids is nil, ordered by UpdatedAt.
	ListConversations(ctx context.Context, ids []string, opts ListOptions) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error
}

// OptOutStore maintains conversation opt-outs.
type OptOutStore interface {
	// CreateOptOut returns ErrDuplicateEntry when the pair already has one.
	CreateOptOut(ctx context.Context, o *OptOut) error
	CountOptOuts(ctx context.Context, conversationID string, who Ref) (int64, error)
	// DeleteOptOuts removes every opt-out for the pair and returns how many
	// were removed.
	DeleteOptOuts(ctx context.Context, conversationID string, who Ref) (int64, error)
}
