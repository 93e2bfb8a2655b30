// Package postgres provides a PostgreSQL implementation of store.Store.
//
// Records live in four tables sharing a configurable prefix. Receipts
// reference their notification and opt-outs their conversation with
// ON DELETE CASCADE, so deletes clean up dependents in the same statement.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rbaliyan/mailboxer/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
	ownsDB    bool

	notifications string
	receipts      string
	conversations string
	optOuts       string
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:            db,
		opts:          o,
		logger:        o.logger,
		notifications: pq.QuoteIdentifier(o.tablePrefix + "notifications"),
		receipts:      pq.QuoteIdentifier(o.tablePrefix + "receipts"),
		conversations: pq.QuoteIdentifier(o.tablePrefix + "conversations"),
		optOuts:       pq.QuoteIdentifier(o.tablePrefix + "opt_outs"),
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Open connects to dsn with the lib/pq driver. The returned store owns the
// connection and closes it on Close.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	s := New(db, opts...)
	s.ownsDB = true
	return s, nil
}

// Connect initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table_prefix", s.opts.tablePrefix)
	return nil
}

// Close marks the store as disconnected. A connection passed to New or
// NewFromDB stays open; the caller closes it.
func (s *Store) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 1, 0) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// ensureSchema creates the tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	tables := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.conversations),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			sender_type VARCHAR(255) NOT NULL DEFAULT '',
			sender_id VARCHAR(255) NOT NULL DEFAULT '',
			object_type VARCHAR(255) NOT NULL DEFAULT '',
			object_id VARCHAR(255) NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			notification_code VARCHAR(255) NOT NULL DEFAULT '',
			attachment TEXT NOT NULL DEFAULT '',
			global BOOLEAN NOT NULL DEFAULT FALSE,
			expires TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.notifications),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			notification_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			conversation_id TEXT NOT NULL DEFAULT '',
			receiver_type VARCHAR(255) NOT NULL,
			receiver_id VARCHAR(255) NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			trashed BOOLEAN NOT NULL DEFAULT FALSE,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			mailbox_type VARCHAR(32) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.receipts, s.notifications),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			unsubscriber_type VARCHAR(255) NOT NULL,
			unsubscriber_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (conversation_id, unsubscriber_type, unsubscriber_id)
		)`, s.optOuts, s.conversations),
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	p := s.opts.tablePrefix
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(receiver_type, receiver_id, created_at)`,
			pq.QuoteIdentifier("idx_"+p+"receipts_receiver"), s.receipts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(notification_id)`,
			pq.QuoteIdentifier("idx_"+p+"receipts_notification"), s.receipts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(conversation_id) WHERE conversation_id <> ''`,
			pq.QuoteIdentifier("idx_"+p+"receipts_conversation"), s.receipts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(conversation_id, created_at) WHERE conversation_id <> ''`,
			pq.QuoteIdentifier("idx_"+p+"notifications_conversation"), s.notifications),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(created_at)`,
			pq.QuoteIdentifier("idx_"+p+"notifications_created"), s.notifications),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(updated_at)`,
			pq.QuoteIdentifier("idx_"+p+"conversations_updated"), s.conversations),
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
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

// PostgreSQL error codes mapped to store errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapError translates driver errors into store errors.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, store.ErrDuplicateEntry)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return nil
}
