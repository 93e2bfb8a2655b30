package gormdb

import (
	"context"
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

	db, cancel := s.session(ctx)
	defer cancel()

	var rows []receiptModel
	tx := page(applyFilters(db.Model(&receiptModel{}), filters), "created_at", opts)
	if err := tx.Find(&rows).Error; err != nil {
		return nil, mapError(err, "find receipts")
	}
	out := make([]*store.Receipt, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
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

	db, cancel := s.session(ctx)
	defer cancel()

	var n int64
	if err := applyFilters(db.Model(&receiptModel{}), filters).Count(&n).Error; err != nil {
		return 0, mapError(err, "count receipts")
	}
	return n, nil
}

// UpdateReceipts applies u in one UPDATE and returns the rows matched.
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

	db, cancel := s.session(ctx)
	defer cancel()

	keys, values := u.Columns()
	set := map[string]any{"updated_at": time.Now().UTC()}
	for i, k := range keys {
		set[k] = values[i]
	}
	result := applyFilters(db.Model(&receiptModel{}), filters).UpdateColumns(set)
	if result.Error != nil {
		return 0, mapError(result.Error, "update receipts")
	}
	return result.RowsAffected, nil
}
