package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/rbaliyan/mailboxer/store"
)

// CreateDelivery inserts the conversation, notification and receipts.
func (s *Store) CreateDelivery(ctx context.Context, d *store.Delivery) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if d == nil || d.Notification == nil || d.Notification.ID == "" {
		return store.ErrInvalidID
	}
	if d.Conversation != nil && d.Conversation.ID == "" {
		return store.ErrInvalidID
	}
	receipts := make([]any, len(d.Receipts))
	for i, r := range d.Receipts {
		if r == nil || r.ID == "" {
			return store.ErrInvalidID
		}
		receipts[i] = newReceiptDoc(r)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.inTransaction(ctx, func(ctx context.Context, transactional bool) error {
		var undo []func()
		err := s.insertDelivery(ctx, d, receipts, func(fn func()) { undo = append(undo, fn) })
		if err != nil && !transactional {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
		return err
	})
}

// insertDelivery performs the writes of one delivery, registering an undo
// step for each write that succeeded.
func (s *Store) insertDelivery(ctx context.Context, d *store.Delivery, receipts []any, onUndo func(func())) error {
	// Undo runs on a context detached from the failed request.
	cleanup := context.WithoutCancel(ctx)

	if c := d.Conversation; c != nil {
		doc := &conversationDoc{ID: c.ID, Subject: c.Subject, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
		if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
			return mapError(err, "insert conversation "+c.ID)
		}
		onUndo(func() { _, _ = s.conversations.DeleteOne(cleanup, bson.M{"_id": c.ID}) })
	} else if cid := d.Notification.ConversationID; cid != "" {
		err := s.conversations.FindOne(ctx, bson.M{"_id": cid}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("conversation %s: %w", cid, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find conversation: %w", err)
		}
	}

	n := d.Notification
	if _, err := s.notifications.InsertOne(ctx, newNotificationDoc(n)); err != nil {
		return mapError(err, "insert notification "+n.ID)
	}
	onUndo(func() { _, _ = s.notifications.DeleteOne(cleanup, bson.M{"_id": n.ID}) })

	if len(receipts) == 0 {
		return nil
	}
	// Undo is registered before the insert: an ordered InsertMany may have
	// stored a prefix of the batch when it fails.
	ids := make([]string, len(d.Receipts))
	for i, r := range d.Receipts {
		ids[i] = r.ID
	}
	onUndo(func() {
		_, _ = s.receipts.DeleteMany(cleanup, bson.M{"_id": bson.M{"$in": ids}, "notification_id": n.ID})
	})
	if _, err := s.receipts.InsertMany(ctx, receipts); err != nil {
		return mapError(err, "insert receipts")
	}
	return nil
}

// CreateReceipt inserts one receipt, keeping its timestamps.
func (s *Store) CreateReceipt(ctx context.Context, r *store.Receipt) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if r == nil || r.ID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.notifications.CountDocuments(ctx, bson.M{"_id": r.NotificationID})
	if err != nil {
		return fmt.Errorf("find notification: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", r.NotificationID, store.ErrNotFound)
	}
	_, err = s.receipts.InsertOne(ctx, newReceiptDoc(r))
	return mapError(err, "insert receipt "+r.ID)
}
