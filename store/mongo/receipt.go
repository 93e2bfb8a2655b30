package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

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

	cursor, err := s.receipts.Find(ctx, buildFilter(filters), findOptions("created_at", opts))
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	var docs []receiptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}
	out := make([]*store.Receipt, len(docs))
	for i := range docs {
		out[i] = docs[i].record()
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

	n, err := s.receipts.CountDocuments(ctx, buildFilter(filters))
	if err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

// UpdateReceipts applies u with a single UpdateMany and returns the number
// of receipts matched.
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

	keys, values := u.Columns()
	set := bson.M{"updated_at": time.Now().UTC()}
	for i, k := range keys {
		set[k] = values[i]
	}
	result, err := s.receipts.UpdateMany(ctx, buildFilter(filters), bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("update receipts: %w", err)
	}
	return result.MatchedCount, nil
}
