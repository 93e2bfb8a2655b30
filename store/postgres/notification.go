package postgres

import (
	"context"
	"fmt"
	"time"

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

	var row notificationRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, notificationColumns, s.notifications)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, mapError(err, "get notification")
	}
	return row.record(), nil
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

	where, args := buildNotificationWhere(q)
	tail, tailArgs := orderAndPage(&whereBuilder{args: args}, "created_at", opts)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s%s`, notificationColumns, s.notifications, where, tail)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, tailArgs...)...); err != nil {
		return nil, mapError(err, "find notifications")
	}
	out := make([]*store.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.record()
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

	query := fmt.Sprintf(`UPDATE %s SET expires = $1, updated_at = $2 WHERE id = $3`, s.notifications)
	result, err := s.db.ExecContext(ctx, query, expires, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "set expiry")
	}
	return requireRows(result)
}

// DeleteNotification deletes the notification; its receipts cascade.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.notifications)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return mapError(err, "delete notification")
	}
	return requireRows(result)
}
