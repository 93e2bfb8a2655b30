package memory

import (
	"context"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// FindReceipts returns receipts matching all filters, ordered by creation time.
func (s *Store) FindReceipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) ([]*store.Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}
	var out []*store.Receipt
	s.receipts.Range(func(_, v any) bool {
		r := v.(*store.Receipt)
		if matchesFilters(r, filters) {
			out = append(out, r.Clone())
		}
		return true
	})
	sortByTime(out, func(r *store.Receipt) (time.Time, string) { return r.CreatedAt, r.ID }, opts.SortOrder)
	return page(out, opts), nil
}

// CountReceipts counts receipts matching all filters.
func (s *Store) CountReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}
	var count int64
	s.receipts.Range(func(_, v any) bool {
		if matchesFilters(v.(*store.Receipt), filters) {
			count++
		}
		return true
	})
	return count, nil
}

// UpdateReceipts applies u to every matching receipt. Each receipt is
// replaced under its own lock; the filter is re-checked after locking so a
// concurrent update that moved a receipt out of the set is respected.
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

	var ids []string
	s.receipts.Range(func(k, v any) bool {
		if matchesFilters(v.(*store.Receipt), filters) {
			ids = append(ids, k.(string))
		}
		return true
	})

	now := time.Now().UTC()
	var matched int64
	for _, id := range ids {
		if s.updateReceipt(id, filters, u, now) {
			matched++
		}
	}
	return matched, nil
}

func (s *Store) updateReceipt(id string, filters []store.Filter, u store.ReceiptUpdate, now time.Time) bool {
	lock := s.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.receipts.Load(id)
	if !ok {
		return false
	}
	current := v.(*store.Receipt)
	if !matchesFilters(current, filters) {
		return false
	}
	r := current.Clone()
	u.Apply(r, now)
	s.receipts.Store(id, r)
	return true
}
