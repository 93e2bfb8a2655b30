package memory

import (
	"context"
	"fmt"

	"github.com/rbaliyan/mailboxer/store"
)

// CreateOptOut stores an opt-out. The conversation must exist.
func (s *Store) CreateOptOut(ctx context.Context, o *store.OptOut) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if o == nil || o.ID == "" || o.ConversationID == "" {
		return store.ErrInvalidID
	}
	if _, ok := s.conversations.Load(o.ConversationID); !ok {
		return fmt.Errorf("conversation %s: %w", o.ConversationID, store.ErrNotFound)
	}

	lock := s.getLock(pairKey(o.ConversationID, o.Unsubscriber))
	lock.Lock()
	defer lock.Unlock()

	if s.hasOptOut(o.ConversationID, o.Unsubscriber) {
		return store.ErrDuplicateEntry
	}
	if _, loaded := s.optOuts.LoadOrStore(o.ID, o.Clone()); loaded {
		return store.ErrDuplicateEntry
	}
	return nil
}

// pairKey names the lock guarding one (conversation, unsubscriber) pair.
func pairKey(conversationID string, who store.Ref) string {
	return "optout:" + conversationID + "/" + who.Type + "/" + who.ID
}

func (s *Store) hasOptOut(conversationID string, who store.Ref) bool {
	found := false
	s.optOuts.Range(func(_, v any) bool {
		o := v.(*store.OptOut)
		found = o.ConversationID == conversationID && o.Unsubscriber == who
		return !found
	})
	return found
}

// CountOptOuts counts opt-outs for the pair.
func (s *Store) CountOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	var count int64
	s.optOuts.Range(func(_, v any) bool {
		o := v.(*store.OptOut)
		if o.ConversationID == conversationID && o.Unsubscriber == who {
			count++
		}
		return true
	})
	return count, nil
}

// DeleteOptOuts removes every opt-out for the pair.
func (s *Store) DeleteOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	lock := s.getLock(pairKey(conversationID, who))
	lock.Lock()
	defer lock.Unlock()

	var removed int64
	s.optOuts.Range(func(k, v any) bool {
		o := v.(*store.OptOut)
		if o.ConversationID == conversationID && o.Unsubscriber == who {
			if _, loaded := s.optOuts.LoadAndDelete(k); loaded {
				removed++
			}
		}
		return true
	})
	return removed, nil
}
