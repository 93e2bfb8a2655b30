package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rbaliyan/mailboxer/store"
)

// CreateDelivery inserts the conversation, notification and receipts in one
// transaction. A reply locks its conversation row so a concurrent delete
// cannot remove it mid-delivery.
func (s *Store) CreateDelivery(ctx context.Context, d *store.Delivery) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if d == nil || d.Notification == nil || d.Notification.ID == "" {
		return store.ErrInvalidID
	}
	for _, r := range d.Receipts {
		if r == nil || r.ID == "" {
			return store.ErrInvalidID
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if c := d.Conversation; c != nil {
			if c.ID == "" {
				return store.ErrInvalidID
			}
			query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (:id, :subject, :created_at, :updated_at)`,
				s.conversations, conversationColumns)
			row := conversationRow{ID: c.ID, Subject: c.Subject, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
			if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
				return mapError(err, "insert conversation "+c.ID)
			}
		} else if cid := d.Notification.ConversationID; cid != "" {
			var id string
			query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR SHARE`, s.conversations)
			if err := tx.GetContext(ctx, &id, query, cid); err != nil {
				return fmt.Errorf("conversation %s: %w", cid, mapError(err, "lock conversation"))
			}
		}

		if err := s.insertNotification(ctx, tx, d.Notification); err != nil {
			return err
		}
		for _, r := range d.Receipts {
			if err := s.insertReceipt(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertNotification(ctx context.Context, tx sqlx.ExtContext, n *store.Notification) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (
		:id, :kind, :subject, :body, :sender_type, :sender_id, :object_type, :object_id,
		:conversation_id, :notification_code, :attachment, :global, :expires, :created_at, :updated_at)`,
		s.notifications, notificationColumns)
	if _, err := sqlx.NamedExecContext(ctx, tx, query, newNotificationRow(n)); err != nil {
		return mapError(err, "insert notification "+n.ID)
	}
	return nil
}

func (s *Store) insertReceipt(ctx context.Context, tx sqlx.ExtContext, r *store.Receipt) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (
		:id, :notification_id, :conversation_id, :receiver_type, :receiver_id,
		:is_read, :trashed, :deleted, :mailbox_type, :created_at, :updated_at)`,
		s.receipts, receiptColumns)
	if _, err := sqlx.NamedExecContext(ctx, tx, query, newReceiptRow(r)); err != nil {
		return mapError(err, "insert receipt "+r.ID)
	}
	return nil
}

// CreateReceipt inserts one receipt, keeping its timestamps. A missing
// notification surfaces as ErrNotFound through the foreign key.
func (s *Store) CreateReceipt(ctx context.Context, r *store.Receipt) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if r == nil || r.ID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.insertReceipt(ctx, s.db, r)
}
