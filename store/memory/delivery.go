package memory

import (
	"context"
	"fmt"

	"github.com/rbaliyan/mailboxer/store"
)

// deliveryLock serializes deliveries and conversation deletes, so duplicate
// checks and inserts of one batch are not interleaved with another.
const deliveryLock = "\x00delivery"

// CreateDelivery stores the conversation, notification and receipts.
// Duplicate IDs are detected before anything is stored.
func (s *Store) CreateDelivery(ctx context.Context, d *store.Delivery) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if d == nil || d.Notification == nil || d.Notification.ID == "" {
		return store.ErrInvalidID
	}

	lock := s.getLock(deliveryLock)
	lock.Lock()
	defer lock.Unlock()

	if d.Conversation != nil {
		if d.Conversation.ID == "" {
			return store.ErrInvalidID
		}
		if _, ok := s.conversations.Load(d.Conversation.ID); ok {
			return fmt.Errorf("conversation %s: %w", d.Conversation.ID, store.ErrDuplicateEntry)
		}
	} else if cid := d.Notification.ConversationID; cid != "" {
		if _, ok := s.conversations.Load(cid); !ok {
			return fmt.Errorf("conversation %s: %w", cid, store.ErrNotFound)
		}
	}
	if _, ok := s.notifications.Load(d.Notification.ID); ok {
		return fmt.Errorf("notification %s: %w", d.Notification.ID, store.ErrDuplicateEntry)
	}
	seen := make(map[string]bool, len(d.Receipts))
	for _, r := range d.Receipts {
		if r == nil || r.ID == "" {
			return store.ErrInvalidID
		}
		if _, ok := s.receipts.Load(r.ID); ok || seen[r.ID] {
			return fmt.Errorf("receipt %s: %w", r.ID, store.ErrDuplicateEntry)
		}
		seen[r.ID] = true
	}

	if d.Conversation != nil {
		s.conversations.Store(d.Conversation.ID, d.Conversation.Clone())
	}
	s.notifications.Store(d.Notification.ID, d.Notification.Clone())
	for _, r := range d.Receipts {
		s.receipts.Store(r.ID, r.Clone())
	}
	return nil
}

// CreateReceipt stores a single receipt.
func (s *Store) CreateReceipt(ctx context.Context, r *store.Receipt) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if r == nil || r.ID == "" {
		return store.ErrInvalidID
	}
	if _, ok := s.notifications.Load(r.NotificationID); !ok {
		return fmt.Errorf("notification %s: %w", r.NotificationID, store.ErrNotFound)
	}
	if _, loaded := s.receipts.LoadOrStore(r.ID, r.Clone()); loaded {
		return fmt.Errorf("receipt %s: %w", r.ID, store.ErrDuplicateEntry)
	}
	return nil
}
