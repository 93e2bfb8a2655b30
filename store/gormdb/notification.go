package gormdb

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
)

func (s *Store) GetNotification(ctx context.Context, id string) (*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var m notificationModel
	if err := db.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, mapError(err, "get notification")
	}
	return m.record(), nil
}

func (s *Store) FindNotifications(ctx context.Context, q store.NotificationQuery, opts store.ListOptions) ([]*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if q.IDs != nil && len(q.IDs) == 0 {
		return nil, nil
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var rows []notificationModel
	tx := page(applyNotificationQuery(db.Model(&notificationModel{}), q), "created_at", opts)
	if err := tx.Find(&rows).Error; err != nil {
		return nil, mapError(err, "find notifications")
	}
	out := make([]*store.Notification, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
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

	db, cancel := s.session(ctx)
	defer cancel()

	result := db.Model(&notificationModel{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"expires": expires, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return mapError(result.Error, "set expiry")
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteNotification removes the notification and its receipts.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&notificationModel{})
		if result.Error != nil {
			return mapError(result.Error, "delete notification")
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return mapError(tx.Where("notification_id = ?", id).Delete(&receiptModel{}).Error, "delete receipts")
	})
}
