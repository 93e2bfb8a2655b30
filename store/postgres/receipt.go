package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

func (s *Store) FindReceipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) ([]*store.Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := buildWhereClause(filters)
	tail, tailArgs := orderAndPage(&whereBuilder{args: args}, "created_at", opts)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s%s`, receiptColumns, s.receipts, where, tail)

	var rows []receiptRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, tailArgs...)...); err != nil {
		return nil, mapError(err, "find receipts")
	}
	out := make([]*store.Receipt, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *Store) CountReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := buildWhereClause(filters)
	var total int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.receipts, where)
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, mapError(err, "count receipts")
	}
	return total, nil
}

// UpdateReceipts applies u in a single UPDATE and returns the rows matched.
func (s *Store) UpdateReceipts(ctx context.Context, filters []store.Filter, u store.ReceiptUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}
	if u.IsEmpty() {
		return 0, store.ErrEmptyUpdate
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := buildWhereClause(filters)
	keys, values := u.Columns()
	keys = append(keys, "updated_at")
	values = append(values, time.Now().UTC())

	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", k, len(args)+i+1)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, s.receipts, strings.Join(sets, ", "), where)

	result, err := s.db.ExecContext(ctx, query, append(args, values...)...)
	if err != nil {
		return 0, mapError(err, "update receipts")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
