package memory

import (
	"context"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}
	v, ok := s.conversations.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.(*store.Conversation).Clone(), nil
}

// ListConversations returns the given conversations (all when ids is nil),
// ordered by UpdatedAt. Unknown IDs are skipped.
func (s *Store) ListConversations(ctx context.Context, ids []string, opts store.ListOptions) ([]*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []*store.Conversation
	if ids == nil {
		s.conversations.Range(func(_, v any) bool {
			out = append(out, v.(*store.Conversation).Clone())
			return true
		})
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if v, ok := s.conversations.Load(id); ok {
				out = append(out, v.(*store.Conversation).Clone())
			}
		}
	}
	sortByTime(out, func(c *store.Conversation) (time.Time, string) { return c.UpdatedAt, c.ID }, opts.SortOrder)
	return page(out, opts), nil
}

// TouchConversation sets the conversation's UpdatedAt.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.conversations.Load(id)
	if !ok {
		return store.ErrNotFound
	}
	c := v.(*store.Conversation).Clone()
	c.UpdatedAt = at
	s.conversations.Store(id, c)
	return nil
}

// DeleteConversation deletes a conversation with its messages, their
// receipts, and its opt-outs. Returns ErrNotFound if it is already gone.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	// Hold the delivery lock so no reply lands in a half-deleted conversation.
	lock := s.getLock(deliveryLock)
	lock.Lock()
	defer lock.Unlock()

	if _, loaded := s.conversations.LoadAndDelete(id); !loaded {
		return store.ErrNotFound
	}

	s.deleteReceiptsWhere(func(r *store.Receipt) bool { return r.ConversationID == id })
	s.notifications.Range(func(k, v any) bool {
		if v.(*store.Notification).ConversationID == id {
			s.notifications.Delete(k)
			s.locks.Delete(k)
		}
		return true
	})
	s.optOuts.Range(func(k, v any) bool {
		if v.(*store.OptOut).ConversationID == id {
			s.optOuts.Delete(k)
		}
		return true
	})
	s.locks.Delete(id)
	return nil
}
