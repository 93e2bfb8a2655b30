package postgres

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/mailboxer/store"
	"github.com/rbaliyan/mailboxer/store/storetest"
)

var schemaCounter int64

// TestStore runs the shared suite against MAILBOXER_POSTGRES_DSN, giving
// every subtest its own table prefix.
func TestStore(t *testing.T) {
	dsn := os.Getenv("MAILBOXER_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAILBOXER_POSTGRES_DSN not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	storetest.Run(t, func(t *testing.T) store.Store {
		prefix := fmt.Sprintf("mbtest_%d_%d_", os.Getpid(), atomic.AddInt64(&schemaCounter, 1))
		s := New(db, WithTablePrefix(prefix))
		require.NoError(t, s.Connect(context.Background()))
		t.Cleanup(func() {
			for _, table := range []string{s.optOuts, s.receipts, s.notifications, s.conversations} {
				_, _ = db.Exec("DROP TABLE IF EXISTS " + table)
			}
			_ = s.Close(context.Background())
		})
		return s
	})
}

func TestNotConnected(t *testing.T) {
	s := New(nil)
	_, err := s.GetNotification(context.Background(), "n1")
	require.ErrorIs(t, err, store.ErrNotConnected)
	require.Error(t, s.Connect(context.Background()))
}
