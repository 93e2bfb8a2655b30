package memory

import (
	"context"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// GetNotification retrieves a notification or message by ID.
func (s *Store) GetNotification(ctx context.Context, id string) (*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}
	v, ok := s.notifications.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.(*store.Notification).Clone(), nil
}

// FindNotifications returns notifications matching q, ordered by creation time.
func (s *Store) FindNotifications(ctx context.Context, q store.NotificationQuery, opts store.ListOptions) ([]*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []*store.Notification
	s.notifications.Range(func(_, v any) bool {
		n := v.(*store.Notification)
		if q.Matches(n) {
			out = append(out, n.Clone())
		}
		return true
	})
	sortByTime(out, func(n *store.Notification) (time.Time, string) { return n.CreatedAt, n.ID }, opts.SortOrder)
	return page(out, opts), nil
}

// ListMessages returns a conversation's messages ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, conversationID string, order store.SortOrder) ([]*store.Notification, error) {
	if conversationID == "" {
		return nil, store.ErrInvalidID
	}
	return s.FindNotifications(ctx, store.NotificationQuery{
		Kind:           store.KindMessage,
		ConversationID: conversationID,
	}, store.ListOptions{SortOrder: order})
}

// SetNotificationExpiry sets or clears the expiry.
func (s *Store) SetNotificationExpiry(ctx context.Context, id string, expires *time.Time) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.notifications.Load(id)
	if !ok {
		return store.ErrNotFound
	}
	n := v.(*store.Notification).Clone()
	if expires != nil {
		e := *expires
		n.Expires = &e
	} else {
		n.Expires = nil
	}
	n.UpdatedAt = time.Now().UTC()
	s.notifications.Store(id, n)
	return nil
}

// DeleteNotification deletes a notification and its receipts.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}
	if _, loaded := s.notifications.LoadAndDelete(id); !loaded {
		return store.ErrNotFound
	}
	s.deleteReceiptsWhere(func(r *store.Receipt) bool { return r.NotificationID == id })
	s.locks.Delete(id)
	return nil
}

func (s *Store) deleteReceiptsWhere(match func(*store.Receipt) bool) {
	s.receipts.Range(func(k, v any) bool {
		if match(v.(*store.Receipt)) {
			s.receipts.Delete(k)
			s.locks.Delete(k)
		}
		return true
	})
}
