// Package gormdb provides a store.Store on GORM, for SQLite and PostgreSQL.
//
// The schema is created with AutoMigrate. Dependent rows are removed in the
// same transaction as their parent rather than through foreign keys, so the
// store behaves the same on every dialect.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rbaliyan/mailboxer/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using GORM.
type Store struct {
	db        *gorm.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a store on an open GORM handle. Call Connect to migrate the
// schema. The handle is not closed by Close.
func New(db *gorm.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{db: db, opts: o, logger: o.logger}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// OpenSQLite opens a SQLite database. An empty dsn means a private
// in-memory database.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// OpenPostgres opens a PostgreSQL database through the pgx driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Connect migrates the schema.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return errors.New("gormdb: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("auto migrate: %w", err)
	}

	s.logger.Info("connected to database", "dialect", s.db.Dialector.Name())
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// session returns a handle bound to a context carrying the store timeout.
func (s *Store) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	return s.db.WithContext(ctx), cancel
}

// mapError translates GORM errors into store errors. Handles opened
// without TranslateError are matched on the driver message.
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicateMessage(err):
		return fmt.Errorf("%s: %w", what, store.ErrDuplicateEntry)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isDuplicateMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// exists reports whether a row with id is present in model's table.
func exists(tx *gorm.DB, model any, id string) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
