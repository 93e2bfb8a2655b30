package gormdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
	"github.com/rbaliyan/mailboxer/store/storetest"
)

var dbCounter int64

// openTestDB opens a private in-memory SQLite database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("file:mailboxer_%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := OpenSQLite(name)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(openTestDB(t))
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestConnectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	_, err := s.GetConversation(ctx, "c1")
	require.ErrorIs(t, err, store.ErrNotConnected)

	require.NoError(t, s.Connect(ctx))
	require.ErrorIs(t, s.Connect(ctx), store.ErrAlreadyConnected)
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Connect(ctx), "reconnect runs an idempotent migration")

	require.Error(t, New(nil).Connect(ctx))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil, "x"))
	assert.ErrorIs(t, mapError(gorm.ErrRecordNotFound, "x"), store.ErrNotFound)
	assert.ErrorIs(t, mapError(gorm.ErrDuplicatedKey, "x"), store.ErrDuplicateEntry)
	assert.ErrorIs(t, mapError(errors.New("UNIQUE constraint failed: mailboxer_receipts.id"), "x"), store.ErrDuplicateEntry)

	other := errors.New("disk full")
	err := mapError(other, "insert")
	assert.ErrorIs(t, err, other)
	assert.Contains(t, err.Error(), "insert")
}

func TestApplyFiltersEmptySets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &store.Notification{ID: "n1", Kind: store.KindNotification}
	r := &store.Receipt{ID: "r1", NotificationID: "n1", Receiver: store.NewRef("user", "a")}
	require.NoError(t, s.CreateDelivery(ctx, &store.Delivery{Notification: n, Receipts: []*store.Receipt{r}}))

	in, err := store.ReceiptFilter("ConversationID").In()
	require.NoError(t, err)
	got, err := s.FindReceipts(ctx, []store.Filter{in}, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got, "empty IN matches nothing")

	nin, err := store.ReceiptFilter("ConversationID").NotIn()
	require.NoError(t, err)
	count, err := s.CountReceipts(ctx, []store.Filter{nin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "empty NOT IN matches everything")
}
