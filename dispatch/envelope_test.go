package dispatch_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/dispatch"
	"github.com/rbaliyan/mailboxer/dispatch/dispatchtest"
)

func TestNewEnvelope(t *testing.T) {
	alice := dispatchtest.Contact("alice", "alice@example.com")
	bob := dispatchtest.Contact("bob", "")
	carol := mailboxer.Unreachable(mailboxer.NewRef("group", "carol"))

	n, recipients := dispatchtest.Notify(t, "weekly digest", alice, bob, carol)
	env := dispatch.NewEnvelope(context.Background(), n, recipients)

	assert.Equal(t, n.ID(), env.NotificationID)
	assert.Equal(t, "notification", env.Kind)
	assert.Equal(t, "weekly digest", env.Subject)
	assert.Equal(t, []dispatch.Recipient{{Type: "user", ID: "alice", Address: "alice@example.com"}}, env.Recipients)
	assert.Equal(t, []mailboxer.Ref{bob.Ref, mailboxer.NewRef("group", "carol")}, env.Skipped)
	assert.False(t, env.Empty())

	t.Run("marshal", func(t *testing.T) {
		b, err := env.Marshal()
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, n.ID(), decoded["notification_id"])
		assert.NotContains(t, decoded, "conversation_id")
	})

	t.Run("object key", func(t *testing.T) {
		key := env.ObjectKey("outbox")
		day := n.CreatedAt().UTC().Format("2006/01/02")
		assert.True(t, strings.HasPrefix(key, "outbox/"+day+"/"+n.ID()+"-"), key)
		assert.True(t, strings.HasSuffix(key, ".json"), key)
		assert.NotEqual(t, key, env.ObjectKey("outbox"))
	})
}

func TestEnvelopeWithoutAddresses(t *testing.T) {
	n, recipients := dispatchtest.Notify(t, "s", dispatchtest.Contact("bob", ""))
	env := dispatch.NewEnvelope(context.Background(), n, recipients)
	assert.True(t, env.Empty())
	assert.Len(t, env.Skipped, 1)
}
