package postgres

import (
	"context"
	"fmt"

	"github.com/rbaliyan/mailboxer/store"
)

// CreateOptOut inserts an opt-out. A missing conversation surfaces as
// ErrNotFound through the foreign key.
func (s *Store) CreateOptOut(ctx context.Context, o *store.OptOut) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if o == nil || o.ID == "" || o.ConversationID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, unsubscriber_type, unsubscriber_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.optOuts)
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.ConversationID, o.Unsubscriber.Type, o.Unsubscriber.ID, o.CreatedAt, o.UpdatedAt)
	return mapError(err, "insert opt-out")
}

func (s *Store) CountOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var n int64
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE conversation_id = $1 AND unsubscriber_type = $2 AND unsubscriber_id = $3`, s.optOuts)
	if err := s.db.GetContext(ctx, &n, query, conversationID, who.Type, who.ID); err != nil {
		return 0, mapError(err, "count opt-outs")
	}
	return n, nil
}

func (s *Store) DeleteOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE conversation_id = $1 AND unsubscriber_type = $2 AND unsubscriber_id = $3`, s.optOuts)
	result, err := s.db.ExecContext(ctx, query, conversationID, who.Type, who.ID)
	if err != nil {
		return 0, mapError(err, "delete opt-outs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
