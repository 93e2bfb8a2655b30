package gormdb

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
)

// CreateDelivery writes the conversation, notification and receipts in one
// transaction. A reply's conversation must exist.
func (s *Store) CreateDelivery(ctx context.Context, d *store.Delivery) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if d == nil || d.Notification == nil || d.Notification.ID == "" {
		return store.ErrInvalidID
	}
	receipts := make([]*receiptModel, len(d.Receipts))
	for i, r := range d.Receipts {
		if r == nil || r.ID == "" {
			return store.ErrInvalidID
		}
		receipts[i] = newReceiptModel(r)
	}

	db, cancel := s.session(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		if c := d.Conversation; c != nil {
			if c.ID == "" {
				return store.ErrInvalidID
			}
			row := &conversationModel{ID: c.ID, Subject: c.Subject, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
			if err := tx.Create(row).Error; err != nil {
				return mapError(err, "insert conversation "+c.ID)
			}
		} else if cid := d.Notification.ConversationID; cid != "" {
			ok, err := exists(tx, &conversationModel{}, cid)
			if err != nil {
				return mapError(err, "find conversation")
			}
			if !ok {
				return fmt.Errorf("conversation %s: %w", cid, store.ErrNotFound)
			}
		}

		if err := tx.Create(newNotificationModel(d.Notification)).Error; err != nil {
			return mapError(err, "insert notification "+d.Notification.ID)
		}
		if len(receipts) > 0 {
			if err := tx.Create(&receipts).Error; err != nil {
				return mapError(err, "insert receipts")
			}
		}
		return nil
	})
}

// CreateReceipt inserts one receipt for an existing notification.
func (s *Store) CreateReceipt(ctx context.Context, r *store.Receipt) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if r == nil || r.ID == "" {
		return store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &notificationModel{}, r.NotificationID)
		if err != nil {
			return mapError(err, "find notification")
		}
		if !ok {
			return fmt.Errorf("notification %s: %w", r.NotificationID, store.ErrNotFound)
		}
		return mapError(tx.Create(newReceiptModel(r)).Error, "insert receipt "+r.ID)
	})
}
