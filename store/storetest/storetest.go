// Package storetest is a behavioral test suite shared by every store.Store
// implementation.
//
//	func TestStore(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) store.Store { return newConnectedStore(t) })
//	}
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/mailboxer/store"
)

// Factory returns a connected, empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var (
	base   = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	alice  = store.NewRef("user", "alice")
	bob    = store.NewRef("user", "bob")
	carol  = store.NewRef("user", "carol")
	system = store.NewRef("system", "billing")
)

// at returns base plus n minutes. Minutes survive every backend's
// timestamp precision.
func at(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }

// message builds a delivery of one message from sender to recipients,
// starting conversation convID when start is set.
func message(convID, id string, start bool, when time.Time, sender store.Ref, recipients ...store.Ref) *store.Delivery {
	d := &store.Delivery{
		Notification: &store.Notification{
			ID:             id,
			Kind:           store.KindMessage,
			Subject:        "subject " + convID,
			Body:           "body " + id,
			Sender:         sender,
			ConversationID: convID,
			CreatedAt:      when,
			UpdatedAt:      when,
		},
	}
	if start {
		d.Conversation = &store.Conversation{ID: convID, Subject: "subject " + convID, CreatedAt: when, UpdatedAt: when}
	}
	for _, r := range recipients {
		d.Receipts = append(d.Receipts, receipt(id, convID, r, store.MailboxInbox, false, when))
	}
	d.Receipts = append(d.Receipts, receipt(id, convID, sender, store.MailboxSentbox, true, when))
	return d
}

// notice builds a delivery of one plain notification.
func notice(id string, when time.Time, recipients ...store.Ref) *store.Delivery {
	d := &store.Delivery{
		Notification: &store.Notification{
			ID:        id,
			Kind:      store.KindNotification,
			Subject:   "notice " + id,
			Body:      "body",
			Sender:    system,
			CreatedAt: when,
			UpdatedAt: when,
		},
	}
	for _, r := range recipients {
		d.Receipts = append(d.Receipts, receipt(id, "", r, store.MailboxNone, false, when))
	}
	return d
}

func receipt(notificationID, convID string, who store.Ref, box store.MailboxType, read bool, when time.Time) *store.Receipt {
	return &store.Receipt{
		ID:             notificationID + "-" + who.ID,
		NotificationID: notificationID,
		ConversationID: convID,
		Receiver:       who,
		IsRead:         read,
		MailboxType:    box,
		CreatedAt:      when,
		UpdatedAt:      when,
	}
}

func mustDeliver(t *testing.T, s store.Store, d *store.Delivery) {
	t.Helper()
	require.NoError(t, s.CreateDelivery(context.Background(), d))
}

func receiptIDs(rs []*store.Receipt) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func conversationIDs(cs []*store.Conversation) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

// Run runs the suite against the factory's stores.
func Run(t *testing.T, newStore Factory) {
	t.Run("Delivery", func(t *testing.T) { testDelivery(t, newStore(t)) })
	t.Run("DeliveryAllOrNothing", func(t *testing.T) { testDeliveryAllOrNothing(t, newStore(t)) })
	t.Run("ReplyToMissingConversation", func(t *testing.T) { testReplyToMissingConversation(t, newStore(t)) })
	t.Run("Receipts", func(t *testing.T) { testReceipts(t, newStore(t)) })
	t.Run("FilterOperators", func(t *testing.T) { testFilterOperators(t, newStore(t)) })
	t.Run("UpdateReceipts", func(t *testing.T) { testUpdateReceipts(t, newStore(t)) })
	t.Run("CreateReceipt", func(t *testing.T) { testCreateReceipt(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, newStore(t)) })
	t.Run("DeleteNotification", func(t *testing.T) { testDeleteNotification(t, newStore(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
	t.Run("DeleteConversation", func(t *testing.T) { testDeleteConversation(t, newStore(t)) })
	t.Run("OptOuts", func(t *testing.T) { testOptOuts(t, newStore(t)) })
}

func testDelivery(t *testing.T, s store.Store) {
	ctx := context.Background()
	d := message("c1", "m1", true, at(0), alice, bob, carol)
	mustDeliver(t, s, d)

	conv, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "subject c1", conv.Subject)
	assert.True(t, conv.CreatedAt.Equal(at(0)))

	n, err := s.GetNotification(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, store.KindMessage, n.Kind)
	assert.Equal(t, alice, n.Sender)
	assert.Equal(t, "c1", n.ConversationID)
	assert.Nil(t, n.Expires)

	all, err := s.FindReceipts(ctx, store.NotificationIs("m1"), store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sent, err := s.FindReceipts(ctx, store.Join(store.ReceiverIs(alice), store.InSentbox()), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].IsRead)
	assert.Equal(t, "c1", sent[0].ConversationID)

	mustDeliver(t, s, message("c1", "m2", false, at(1), bob, alice, carol))
	msgs, err := s.ListMessages(ctx, "c1", store.SortAsc)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)

	msgs, err = s.ListMessages(ctx, "c1", store.SortDesc)
	require.NoError(t, err)
	assert.Equal(t, "m2", msgs[0].ID)

	_, err = s.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeliveryAllOrNothing(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, message("c1", "m1", true, at(0), alice, bob))

	// m2 reuses the id of one of m1's receipts.
	clash := message("c2", "m2", true, at(1), alice, bob)
	clash.Receipts[0].ID = "m1-bob"
	err := s.CreateDelivery(ctx, clash)
	require.ErrorIs(t, err, store.ErrDuplicateEntry)

	_, err = s.GetNotification(ctx, "m2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetConversation(ctx, "c2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	n, err := s.CountReceipts(ctx, store.NotificationIs("m2"))
	require.NoError(t, err)
	assert.Zero(t, n)

	err = s.CreateDelivery(ctx, message("c1", "m3", true, at(2), alice, bob))
	assert.ErrorIs(t, err, store.ErrDuplicateEntry, "conversation id reused")
}

func testReplyToMissingConversation(t *testing.T, s store.Store) {
	err := s.CreateDelivery(context.Background(), message("ghost", "m1", false, at(0), alice, bob))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustDeliver(t, s, message(fmt.Sprintf("c%d", i), fmt.Sprintf("m%d", i), true, at(i), alice, bob))
	}
	mustDeliver(t, s, notice("n1", at(5), bob))

	inbox, err := s.FindReceipts(ctx, store.Join(store.ReceiverIs(bob), store.InInbox()), store.ListOptions{SortOrder: store.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2-bob", "m1-bob", "m0-bob"}, receiptIDs(inbox))

	paged, err := s.FindReceipts(ctx, store.ReceiverIs(bob), store.ListOptions{Limit: 2, Offset: 1, SortOrder: store.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1-bob", "m2-bob"}, receiptIDs(paged))

	notices, err := s.CountReceipts(ctx, store.Join(store.ReceiverIs(bob), store.IsNotificationReceipt()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, notices)

	messages, err := s.CountReceipts(ctx, store.Join(store.ReceiverIs(bob), store.IsMessageReceipt()))
	require.NoError(t, err)
	assert.EqualValues(t, 3, messages)

	unread, err := s.CountReceipts(ctx, store.Join(store.ReceiverIs(alice), store.IsUnread()))
	require.NoError(t, err)
	assert.Zero(t, unread, "sentbox receipts start read")

	other, err := s.CountReceipts(ctx, store.ReceiverIs(store.NewRef("group", "bob")))
	require.NoError(t, err)
	assert.Zero(t, other, "receiver type is part of identity")
}

func testFilterOperators(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustDeliver(t, s, notice(fmt.Sprintf("n%d", i), at(i), bob))
	}

	before, err := store.ReceiptFilter("CreatedAt").LessThan(at(2))
	require.NoError(t, err)
	got, err := s.FindReceipts(ctx, []store.Filter{before}, store.ListOptions{SortOrder: store.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"n0-bob", "n1-bob"}, receiptIDs(got))

	from, err := store.ReceiptFilter("created_at").GreaterThanEqual(at(2))
	require.NoError(t, err)
	n, err := s.CountReceipts(ctx, []store.Filter{from})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	in, err := store.ReceiptFilter("NotificationID").In("n0", "n3", "missing")
	require.NoError(t, err)
	got, err = s.FindReceipts(ctx, []store.Filter{in}, store.ListOptions{SortOrder: store.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"n0-bob", "n3-bob"}, receiptIDs(got))

	nin, err := store.ReceiptFilter("NotificationID").NotIn("n0", "n3")
	require.NoError(t, err)
	n, err = s.CountReceipts(ctx, []store.Filter{nin})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ne, err := store.ReceiptFilter("ID").NotEqual("n1-bob")
	require.NoError(t, err)
	n, err = s.CountReceipts(ctx, []store.Filter{ne})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = store.ReceiptFilter("Body").Equal("x")
	assert.ErrorIs(t, err, store.ErrFilterInvalid)
}

func testUpdateReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, message("c1", "m1", true, at(0), alice, bob, carol))
	mustDeliver(t, s, message("c1", "m2", false, at(1), bob, alice, carol))

	n, err := s.UpdateReceipts(ctx, store.Join(store.ReceiverIs(carol), store.ConversationIs("c1")),
		store.ReceiptUpdate{IsRead: store.Bool(true)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	unread, err := s.CountReceipts(ctx, store.Join(store.ReceiverIs(carol), store.IsUnread()))
	require.NoError(t, err)
	assert.Zero(t, unread)

	n, err = s.UpdateReceipts(ctx, store.Join(store.ReceiverIs(bob), store.NotificationIs("m1")),
		store.ReceiptUpdate{Trashed: store.Bool(true), MailboxType: store.Mailbox(store.MailboxInbox)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	trash, err := s.FindReceipts(ctx, store.Join(store.ReceiverIs(bob), store.InTrash()), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, "m1-bob", trash[0].ID)
	assert.False(t, trash[0].UpdatedAt.Before(trash[0].CreatedAt))

	n, err = s.UpdateReceipts(ctx, store.ReceiverIs(store.NewRef("user", "nobody")), store.ReceiptUpdate{Deleted: store.Bool(true)})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.UpdateReceipts(ctx, nil, store.ReceiptUpdate{Deleted: store.Bool(true)})
	assert.ErrorIs(t, err, store.ErrFilterInvalid)

	_, err = s.UpdateReceipts(ctx, store.ReceiverIs(bob), store.ReceiptUpdate{})
	assert.ErrorIs(t, err, store.ErrEmptyUpdate)
}

func testCreateReceipt(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, message("c1", "m1", true, at(0), alice, bob))

	r := receipt("m1", "c1", carol, store.MailboxInbox, false, at(0))
	require.NoError(t, s.CreateReceipt(ctx, r))

	got, err := s.FindReceipts(ctx, store.ReceiverIs(carol), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.Equal(at(0)), "backfilled receipts keep the message time")

	assert.ErrorIs(t, s.CreateReceipt(ctx, r), store.ErrDuplicateEntry)
	assert.ErrorIs(t, s.CreateReceipt(ctx, receipt("missing", "c1", carol, store.MailboxInbox, false, at(0))), store.ErrNotFound)
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, notice("n1", at(0), bob))
	global := notice("n2", at(1), bob)
	global.Notification.Global = true
	global.Notification.Object = store.NewRef("invoice", "42")
	global.Notification.NotificationCode = "invoice.due"
	mustDeliver(t, s, global)
	mustDeliver(t, s, message("c1", "m1", true, at(2), alice, bob))

	got, err := s.FindNotifications(ctx, store.NotificationQuery{Kind: store.KindNotification}, store.ListOptions{SortOrder: store.SortAsc})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].ID)

	yes := true
	got, err = s.FindNotifications(ctx, store.NotificationQuery{Global: &yes}, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, store.NewRef("invoice", "42"), got[0].Object)
	assert.Equal(t, "invoice.due", got[0].NotificationCode)

	got, err = s.FindNotifications(ctx, store.NotificationQuery{Sender: alice}, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	got, err = s.FindNotifications(ctx, store.NotificationQuery{IDs: []string{"n2", "m1"}}, store.ListOptions{SortOrder: store.SortDesc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	got, err = s.FindNotifications(ctx, store.NotificationQuery{IDs: []string{}}, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got, "an empty id set matches nothing")
}

func testExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, notice("n1", at(0), bob))
	mustDeliver(t, s, notice("n2", at(1), bob))

	expires := at(10)
	require.NoError(t, s.SetNotificationExpiry(ctx, "n1", &expires))

	n, err := s.GetNotification(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, n.Expires)
	assert.True(t, n.Expires.Equal(expires))

	yes, no := true, false
	expired, err := s.FindNotifications(ctx, store.NotificationQuery{Expired: &yes, Now: at(10)}, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, expired, 1, "expiry is inclusive")
	assert.Equal(t, "n1", expired[0].ID)

	live, err := s.FindNotifications(ctx, store.NotificationQuery{Expired: &no, Now: at(5)}, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, live, 2)

	require.NoError(t, s.SetNotificationExpiry(ctx, "n1", nil))
	n, err = s.GetNotification(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, n.Expires)

	assert.ErrorIs(t, s.SetNotificationExpiry(ctx, "missing", &expires), store.ErrNotFound)
}

func testDeleteNotification(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, notice("n1", at(0), bob, carol))
	mustDeliver(t, s, notice("n2", at(1), bob))

	require.NoError(t, s.DeleteNotification(ctx, "n1"))
	_, err := s.GetNotification(ctx, "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.CountReceipts(ctx, store.NotificationIs("n1"))
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.CountReceipts(ctx, store.NotificationIs("n2"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, s.DeleteNotification(ctx, "n1"), store.ErrNotFound)
}

func testConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustDeliver(t, s, message(fmt.Sprintf("c%d", i), fmt.Sprintf("m%d", i), true, at(i), alice, bob))
	}
	require.NoError(t, s.TouchConversation(ctx, "c0", at(10)))

	all, err := s.ListConversations(ctx, nil, store.ListOptions{SortOrder: store.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c3", "c2", "c1"}, conversationIDs(all))

	paged, err := s.ListConversations(ctx, nil, store.ListOptions{SortOrder: store.SortAsc, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, conversationIDs(paged))

	some, err := s.ListConversations(ctx, []string{"c1", "missing", "c2"}, store.ListOptions{SortOrder: store.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, conversationIDs(some))

	none, err := s.ListConversations(ctx, []string{}, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.ErrorIs(t, s.TouchConversation(ctx, "missing", at(11)), store.ErrNotFound)
}

func testDeleteConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, message("c1", "m1", true, at(0), alice, bob))
	mustDeliver(t, s, message("c1", "m2", false, at(1), bob, alice))
	mustDeliver(t, s, message("c2", "m3", true, at(2), alice, bob))
	require.NoError(t, s.CreateOptOut(ctx, &store.OptOut{ID: "o1", ConversationID: "c1", Unsubscriber: bob, CreatedAt: at(3), UpdatedAt: at(3)}))

	require.NoError(t, s.DeleteConversation(ctx, "c1"))

	_, err := s.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	msgs, err := s.ListMessages(ctx, "c1", store.SortAsc)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	n, err := s.CountReceipts(ctx, store.ConversationIs("c1"))
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.CountOptOuts(ctx, "c1", bob)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CountReceipts(ctx, store.ConversationIs("c2"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "other conversations are untouched")

	assert.ErrorIs(t, s.DeleteConversation(ctx, "c1"), store.ErrNotFound)
}

func testOptOuts(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustDeliver(t, s, message("c1", "m1", true, at(0), alice, bob))

	o := &store.OptOut{ID: "o1", ConversationID: "c1", Unsubscriber: bob, CreatedAt: at(1), UpdatedAt: at(1)}
	require.NoError(t, s.CreateOptOut(ctx, o))
	assert.ErrorIs(t, s.CreateOptOut(ctx, o), store.ErrDuplicateEntry)
	again := &store.OptOut{ID: "o3", ConversationID: "c1", Unsubscriber: bob, CreatedAt: at(2), UpdatedAt: at(2)}
	assert.ErrorIs(t, s.CreateOptOut(ctx, again), store.ErrDuplicateEntry, "one opt-out per pair")

	n, err := s.CountOptOuts(ctx, "c1", bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.CountOptOuts(ctx, "c1", alice)
	require.NoError(t, err)
	assert.Zero(t, n)

	removed, err := s.DeleteOptOuts(ctx, "c1", bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	removed, err = s.DeleteOptOuts(ctx, "c1", bob)
	require.NoError(t, err)
	assert.Zero(t, removed)
	require.NoError(t, s.CreateOptOut(ctx, again), "pair is free again after opt-in")

	err = s.CreateOptOut(ctx, &store.OptOut{ID: "o2", ConversationID: "missing", Unsubscriber: bob})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
