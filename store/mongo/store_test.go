package mongo

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rbaliyan/mailboxer/store"
	"github.com/rbaliyan/mailboxer/store/storetest"
)

var databaseCounter int64

// TestStore runs the shared suite against MAILBOXER_MONGO_URI. Every
// subtest gets a fresh database.
func TestStore(t *testing.T) {
	uri := os.Getenv("MAILBOXER_MONGO_URI")
	if uri == "" {
		t.Skip("MAILBOXER_MONGO_URI not set")
	}
	client, err := mongo.Connect(mongoopts.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	storetest.Run(t, func(t *testing.T) store.Store {
		name := fmt.Sprintf("mailboxer_test_%d_%d", os.Getpid(), atomic.AddInt64(&databaseCounter, 1))
		s := New(client, WithDatabase(name))
		require.NoError(t, s.Connect(context.Background()))
		t.Cleanup(func() {
			_ = client.Database(name).Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}

func TestNotConnected(t *testing.T) {
	s := New(nil)
	_, err := s.GetConversation(context.Background(), "c1")
	require.ErrorIs(t, err, store.ErrNotConnected)
	require.Error(t, s.Connect(context.Background()))
}
