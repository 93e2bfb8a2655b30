package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rbaliyan/mailboxer/store"
)

func pairFilter(conversationID string, who store.Ref) bson.M {
	return bson.M{
		"conversation_id":   conversationID,
		"unsubscriber.type": who.Type,
		"unsubscriber.id":   who.ID,
	}
}

// CreateOptOut inserts an opt-out. The conversation must exist.
func (s *Store) CreateOptOut(ctx context.Context, o *store.OptOut) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if o == nil || o.ID == "" || o.ConversationID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": o.ConversationID})
	if err != nil {
		return fmt.Errorf("find conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", o.ConversationID, store.ErrNotFound)
	}
	doc := &optOutDoc{
		ID:             o.ID,
		ConversationID: o.ConversationID,
		Unsubscriber:   o.Unsubscriber,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	_, err = s.optOuts.InsertOne(ctx, doc)
	return mapError(err, "insert opt-out")
}

func (s *Store) CountOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.optOuts.CountDocuments(ctx, pairFilter(conversationID, who))
	if err != nil {
		return 0, fmt.Errorf("count opt-outs: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteOptOuts(ctx context.Context, conversationID string, who store.Ref) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	result, err := s.optOuts.DeleteMany(ctx, pairFilter(conversationID, who))
	if err != nil {
		return 0, fmt.Errorf("delete opt-outs: %w", err)
	}
	return result.DeletedCount, nil
}
