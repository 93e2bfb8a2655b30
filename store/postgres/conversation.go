package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rbaliyan/mailboxer/store"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row conversationRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, conversationColumns, s.conversations)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, mapError(err, "get conversation")
	}
	return row.record(), nil
}

func (s *Store) ListConversations(ctx context.Context, ids []string, opts store.ListOptions) ([]*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	w := &whereBuilder{}
	if ids != nil {
		w.add("id = ANY(?)", pq.StringArray(ids))
	}
	tail, tailArgs := orderAndPage(w, "updated_at", opts)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s%s`, conversationColumns, s.conversations, w.String(), tail)

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, query, append(w.args, tailArgs...)...); err != nil {
		return nil, mapError(err, "list conversations")
	}
	out := make([]*store.Conversation, len(rows))
	for i, r := range rows {
		out[i] = r.record()
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

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, s.conversations)
	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return mapError(err, "touch conversation")
	}
	return requireRows(result)
}

// DeleteConversation removes the conversation's messages (receipts cascade)
// and then the conversation (opt-outs cascade) in one transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		lock := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, s.conversations)
		if err := tx.GetContext(ctx, &locked, lock, id); err != nil {
			return mapError(err, "lock conversation")
		}
		msgs := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.notifications)
		if _, err := tx.ExecContext(ctx, msgs, id); err != nil {
			return mapError(err, "delete messages")
		}
		conv := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.conversations)
		if _, err := tx.ExecContext(ctx, conv, id); err != nil {
			return mapError(err, "delete conversation")
		}
		return nil
	})
}

// requireRows maps an update or delete that touched nothing to ErrNotFound.
func requireRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
