package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rbaliyan/mailboxer/store"
)

func (s *Store) GetNotification(ctx context.Context, id string) (*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc notificationDoc
	if err := s.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapError(err, "find notification")
	}
	return doc.record(), nil
}

func (s *Store) FindNotifications(ctx context.Context, q store.NotificationQuery, opts store.ListOptions) ([]*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if q.IDs != nil && len(q.IDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	cursor, err := s.notifications.Find(ctx, buildNotificationFilter(q), findOptions("created_at", opts))
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	out := make([]*store.Notification, len(docs))
	for i := range docs {
		out[i] = docs[i].record()
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, order store.SortOrder) ([]*store.Notification, error) {
	if conversationID == "" {
		return nil, store.ErrInvalidID
	}
	return s.FindNotifications(ctx, store.NotificationQuery{
		Kind:           store.KindMessage,
		ConversationID: conversationID,
	}, store.ListOptions{SortOrder: order})
}

func (s *Store) SetNotificationExpiry(ctx context.Context, id string, expires *time.Time) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"expires": expires, "updated_at": time.Now().UTC()}}
	result, err := s.notifications.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("set expiry: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteNotification deletes a notification and then its receipts.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.inTransaction(ctx, func(ctx context.Context, _ bool) error {
		result, err := s.notifications.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("delete notification: %w", err)
		}
		if result.DeletedCount == 0 {
			return store.ErrNotFound
		}
		if _, err := s.receipts.DeleteMany(ctx, bson.M{"notification_id": id}); err != nil {
			return fmt.Errorf("delete receipts: %w", err)
		}
		return nil
	})
}
