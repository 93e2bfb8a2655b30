// Package mongo provides a MongoDB implementation of store.Store.
//
// Notifications, receipts, conversations and opt-outs live in separate
// collections keyed by the caller-assigned ID. Deliveries and conversation
// deletes run in a transaction on replica sets; standalone servers fall back
// to compensating deletes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rbaliyan/mailboxer/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	opts      *options
	connected int32
	logger    *slog.Logger

	notifications *mongo.Collection
	receipts      *mongo.Collection
	conversations *mongo.Collection
	optOuts       *mongo.Collection
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collections, and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	p := s.opts.collectionPrefix
	s.notifications = s.db.Collection(p + "notifications")
	s.receipts = s.db.Collection(p + "receipts")
	s.conversations = s.db.Collection(p + "conversations")
	s.optOuts = s.db.Collection(p + "opt_outs")

	if err := s.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	s.logger.Info("connected to MongoDB", "database", s.opts.database, "collection_prefix", p)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureIndexes creates required indexes.
func (s *Store) ensureIndexes(ctx context.Context) error {
	receiptIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			bson.E{Key: "receiver.type", Value: 1},
			bson.E{Key: "receiver.id", Value: 1},
			bson.E{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{bson.E{Key: "notification_id", Value: 1}}},
		{
			Keys: bson.D{bson.E{Key: "conversation_id", Value: 1}},
			Options: mongoopts.Index().
				SetPartialFilterExpression(bson.M{"conversation_id": bson.M{"$gt": ""}}),
		},
	}
	if _, err := s.receipts.Indexes().CreateMany(ctx, receiptIndexes); err != nil {
		return fmt.Errorf("receipts: %w", err)
	}

	notificationIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			bson.E{Key: "conversation_id", Value: 1},
			bson.E{Key: "created_at", Value: 1},
		}},
		{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}},
	}
	if _, err := s.notifications.Indexes().CreateMany(ctx, notificationIndexes); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}

	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{bson.E{Key: "updated_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("conversations: %w", err)
	}

	if _, err := s.optOuts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			bson.E{Key: "conversation_id", Value: 1},
			bson.E{Key: "unsubscriber.type", Value: 1},
			bson.E{Key: "unsubscriber.id", Value: 1},
		},
		Options: mongoopts.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("opt_outs: %w", err)
	}
	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// mapError translates driver errors into store errors.
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", what, store.ErrDuplicateEntry)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// inTransaction runs fn in a transaction. When the deployment does not
// support transactions fn runs directly with transactional set to false,
// and must undo its own partial writes on failure.
func (s *Store) inTransaction(ctx context.Context, fn func(ctx context.Context, transactional bool) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fn(ctx, false)
	}
	defer session.EndSession(ctx)

	_, txErr := session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		return nil, fn(sessCtx, true)
	})
	if isTransactionNotSupported(txErr) {
		s.logger.Debug("transactions not supported, running without", "error", txErr)
		return fn(ctx, false)
	}
	return txErr
}

// isTransactionNotSupported checks if the error indicates transactions aren't supported.
func isTransactionNotSupported(err error) bool {
	if err == nil {
		return false
	}
	// 263 is OperationNotSupportedInTransaction; 20 is IllegalOperation,
	// returned by standalone servers.
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 263 || cmdErr.Code == 20
	}
	return false
}
