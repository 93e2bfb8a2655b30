package gormdb

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
)

func pair(tx *gorm.DB, conversationID string, who store.Ref) *gorm.DB {
	return tx.Where("conversation_id = ? AND unsubscriber_type = ? AND unsubscriber_id = ?",
		conversationID, who.Type, who.ID)
}

// CreateOptOut inserts an opt-out for an existing conversation.
func (s *Store) CreateOptOut(ctx context.Context, o *store.OptOut) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if o == nil || o.ID == "" || o.ConversationID == "" {
		return store.ErrInvalidID
	}

	db, cancel := s.session(ctx)
	defer cancel()

	return db.Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &conversationModel{}, o.ConversationID)
		if err != nil {
			return mapError(err, "find conversation")
		}
		if !ok {
			return fmt.Errorf("conversation %s: %w", o.ConversationID, store.ErrNotFound)
		}
		row := &optOutModel{
			ID:               o.ID,
			ConversationID:   o.ConversationID,
			UnsubscriberType: o.Unsubscriber.Type,
			UnsubscriberID:   o.Unsubscriber.ID,
			CreatedAt:        o.CreatedAt,
			UpdatedAt:        o.UpdatedAt,
		}
		return mapError(tx.Create(row).Error, "insert opt-out")
	})
}

func (s *Store) CountOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var n int64
	if err := pair(db.Model(&optOutModel{}), conversationID, who).Count(&n).Error; err != nil {
		return 0, mapError(err, "count opt-outs")
	}
	return n, nil
}

func (s *Store) DeleteOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	db, cancel := s.session(ctx)
	defer cancel()

	result := pair(db, conversationID, who).Delete(&optOutModel{})
	if result.Error != nil {
		return 0, mapError(result.Error, "delete opt-outs")
	}
	return result.RowsAffected, nil
}
