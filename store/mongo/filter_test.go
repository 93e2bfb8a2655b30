package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rbaliyan/mailboxer/store"
)

func mustFilter(f store.Filter, err error) store.Filter {
	if err != nil {
		panic(err)
	}
	return f
}

func TestBuildFilter(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		assert.Equal(t, bson.M{}, buildFilter(nil))
	})

	t.Run("receiver maps to embedded document", func(t *testing.T) {
		got := buildFilter(store.Join(store.ReceiverIs(store.NewRef("user", "a")), store.InInbox()))
		assert.Equal(t, bson.M{
			"receiver.type": bson.M{"$eq": "user"},
			"receiver.id":   bson.M{"$eq": "a"},
			"mailbox_type":  bson.M{"$eq": "inbox"},
			"trashed":       bson.M{"$eq": false},
			"deleted":       bson.M{"$eq": false},
		}, got)
	})

	t.Run("id maps to _id", func(t *testing.T) {
		assert.Equal(t, bson.M{"_id": bson.M{"$eq": "r1"}}, buildFilter(store.ReceiptIs("r1")))
	})

	t.Run("operators on one field merge", func(t *testing.T) {
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		until := from.Add(time.Hour)
		got := buildFilter([]store.Filter{
			mustFilter(store.ReceiptFilter("CreatedAt").GreaterThanEqual(from)),
			mustFilter(store.ReceiptFilter("CreatedAt").LessThan(until)),
		})
		assert.Equal(t, bson.M{"created_at": bson.M{"$gte": from, "$lt": until}}, got)
	})

	t.Run("set values are normalized", func(t *testing.T) {
		got := buildFilter([]store.Filter{mustFilter(store.ReceiptFilter("MailboxType").NotIn(store.MailboxSentbox))})
		assert.Equal(t, bson.M{"mailbox_type": bson.M{"$nin": []any{"sentbox"}}}, got)
	})
}

func TestBuildNotificationFilter(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	yes, no := true, false

	tests := []struct {
		name  string
		query store.NotificationQuery
		want  bson.M
	}{
		{"empty", store.NotificationQuery{}, bson.M{}},
		{
			"ids and kind",
			store.NotificationQuery{IDs: []string{"n1"}, Kind: store.KindMessage},
			bson.M{"_id": bson.M{"$in": []string{"n1"}}, "kind": "message"},
		},
		{
			"sender",
			store.NotificationQuery{Sender: store.NewRef("user", "a"), Global: &yes},
			bson.M{"sender.type": "user", "sender.id": "a", "global": true},
		},
		{
			"expired",
			store.NotificationQuery{Expired: &yes, Now: now},
			bson.M{"expires": bson.M{"$lte": now}},
		},
		{
			"unexpired",
			store.NotificationQuery{Expired: &no, Now: now},
			bson.M{"$or": bson.A{
				bson.M{"expires": nil},
				bson.M{"expires": bson.M{"$gt": now}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildNotificationFilter(tt.query))
		})
	}
}
