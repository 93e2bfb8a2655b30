// Package mailboxer provides notifications, conversations and messages
// between arbitrary participants, with per-participant mailbox state.
//
// A participant is any value that implements Participant: a stable
// (type, id) reference plus an address hook used by the Dispatcher. Each
// delivery creates one Receipt per recipient. Receipts hold read, trashed,
// deleted and mailbox (inbox/sentbox) state for their receiver. Messages
// belong to a Conversation, and their sender gets a sentbox receipt that
// is already read.
//
// Delivery is all-or-nothing: the notification, the conversation it
// starts and every receipt are validated before anything is written, and
// stores persist them together.
//
// # Basic Usage
//
//	svc, err := mailboxer.NewService(
//	    mailboxer.WithStore(memory.New()),
//	    mailboxer.WithDispatcher(outbox),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	alice := &mailboxer.Contact{Ref: mailboxer.NewRef("user", "alice"), Email: "alice@example.com"}
//	bob := &mailboxer.Contact{Ref: mailboxer.NewRef("user", "bob")}
//
//	// Start a conversation
//	sent, err := svc.SendMessage(ctx, alice, []mailboxer.Participant{bob}, "Hello", "Hi Bob")
//
//	// Bob's inbox
//	convs, err := svc.Conversations(ctx, bob, mailboxer.ViewInbox, mailboxer.ListOptions{})
//
//	// Broadcast a notification
//	d, err := svc.NotifyAll(ctx, []mailboxer.Participant{alice, bob}, "Maintenance", "Tonight at 10")
//
// # Storage Backends
//
//   - In-memory (store/memory), for tests and single-process use
//   - PostgreSQL (store/postgres), accepts *sql.DB or *sqlx.DB
//   - MongoDB (store/mongo), accepts *mongo.Client
//   - GORM (store/gormdb), accepts *gorm.DB (sqlite or postgres)
//
// # Events
//
// Events use github.com/rbaliyan/event/v3. Pass WithRedisClient or
// WithEventTransport to publish them; the default transport discards them.
//
//	svc.Events().MessageDelivered.Subscribe(ctx, handler)
//
// Available events:
//   - NotificationDelivered, MessageDelivered
//   - ReceiptsUpdated
//   - ConversationDestroyed
//   - ParticipantAdded, ParticipantOptedOut, ParticipantOptedIn
package mailboxer
