package gormdb

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var m conversationModel
	if err := db.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, mapError(err, "get conversation")
	}
	return m.record(), nil
}

func (s *Store) ListConversations(ctx context.Context, ids []string, opts store.ListOptions) ([]*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}

	db, cancel := s.session(ctx)
	defer cancel()

	tx := db.Model(&conversationModel{})
	if ids != nil {
		tx = tx.Where("id IN ?", ids)
	}
	var rows []conversationModel
	if err := page(tx, "updated_at", opts).Find(&rows).Error; err != nil {
		return nil, mapError(err, "list conversations")
	}
	out := make([]*store.Conversation, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	result := db.Model(&conversationModel{}).Where("id = ?", id).UpdateColumn("updated_at", at)
	if result.Error != nil {
		return mapError(result.Error, "touch conversation")
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation, then its messages, their
// receipts and its opt-outs, in one transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&conversationModel{})
		if result.Error != nil {
			return mapError(result.Error, "delete conversation")
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		for _, dep := range []any{&receiptModel{}, &notificationModel{}, &optOutModel{}} {
			if err := tx.Where("conversation_id = ?", id).Delete(dep).Error; err != nil {
				return mapError(err, "delete conversation dependents")
			}
		}
		return nil
	})
}
