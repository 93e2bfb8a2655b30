package mailboxer

import (
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// ReceiptBuilder computes a receipt's default fields from the notification
// it belongs to. Zero fields take these defaults:
//   - MailboxType: inbox for messages, none for plain notifications
//   - CreatedAt/UpdatedAt: the notification's timestamps
type ReceiptBuilder struct {
	Notification *store.Notification
	MailboxType  MailboxType
	IsRead       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Build returns a new unsaved receipt for receiver with a fresh ID.
func (b ReceiptBuilder) Build(receiver Ref) *store.Receipt {
	n := b.Notification
	mt := b.MailboxType
	if mt == store.MailboxNone && n.IsMessage() {
		mt = store.MailboxInbox
	}
	created, updated := b.CreatedAt, b.UpdatedAt
	if created.IsZero() {
		created = n.CreatedAt
	}
	if updated.IsZero() {
		updated = n.UpdatedAt
	}
	return &store.Receipt{
		ID:             newID(),
		NotificationID: n.ID,
		ConversationID: n.ConversationID,
		Receiver:       receiver,
		IsRead:         b.IsRead,
		MailboxType:    mt,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
}

// buildReceipts expands recipients into candidate receipts and returns the
// recipients that got one. Repeated receivers get a single receipt, and for
// messages the sender is skipped since it gets the sentbox receipt, already
// read, appended last. A nil recipient yields a receipt with no receiver,
// which fails validation.
func buildReceipts(n *store.Notification, recipients []Participant) ([]*store.Receipt, []Participant) {
	receipts := make([]*store.Receipt, 0, len(recipients)+1)
	kept := make([]Participant, 0, len(recipients))
	seen := make(map[Ref]struct{}, len(recipients))
	if n.IsMessage() && !n.Sender.IsZero() {
		seen[n.Sender] = struct{}{}
	}
	inbox := ReceiptBuilder{Notification: n}
	for _, p := range recipients {
		ref, ok := refOf(p)
		if ok {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
		}
		receipts = append(receipts, inbox.Build(ref))
		kept = append(kept, p)
	}
	if n.IsMessage() {
		sent := ReceiptBuilder{Notification: n, MailboxType: store.MailboxSentbox, IsRead: true}
		receipts = append(receipts, sent.Build(n.Sender))
	}
	return receipts, kept
}
