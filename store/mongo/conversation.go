package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

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

	var doc conversationDoc
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapError(err, "find conversation")
	}
	return doc.record(), nil
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

	filter := bson.M{}
	if ids != nil {
		filter["_id"] = bson.M{"$in": ids}
	}
	cursor, err := s.conversations.Find(ctx, filter, findOptions("updated_at", opts))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]*store.Conversation, len(docs))
	for i := range docs {
		out[i] = docs[i].record()
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

	result, err := s.conversations.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation first, so a concurrent reply
// fails its existence check, then its messages, receipts and opt-outs.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.inTransaction(ctx, func(ctx context.Context, _ bool) error {
		result, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if result.DeletedCount == 0 {
			return store.ErrNotFound
		}
		byConversation := bson.M{"conversation_id": id}
		if _, err := s.receipts.DeleteMany(ctx, byConversation); err != nil {
			return fmt.Errorf("delete receipts: %w", err)
		}
		if _, err := s.notifications.DeleteMany(ctx, byConversation); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := s.optOuts.DeleteMany(ctx, byConversation); err != nil {
			return fmt.Errorf("delete opt-outs: %w", err)
		}
		return nil
	})
}
