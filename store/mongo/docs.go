package mongo

import (
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

type notificationDoc struct {
	ID               string     `bson:"_id"`
	Kind             string     `bson:"kind"`
	Subject          string     `bson:"subject"`
	Body             string     `bson:"body"`
	Sender           store.Ref  `bson:"sender"`
	Object           store.Ref  `bson:"object"`
	ConversationID   string     `bson:"conversation_id"`
	NotificationCode string     `bson:"notification_code,omitempty"`
	Attachment       string     `bson:"attachment,omitempty"`
	Global           bool       `bson:"global"`
	Expires          *time.Time `bson:"expires"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

func newNotificationDoc(n *store.Notification) *notificationDoc {
	return &notificationDoc{
		ID:               n.ID,
		Kind:             string(n.Kind),
		Subject:          n.Subject,
		Body:             n.Body,
		Sender:           n.Sender,
		Object:           n.Object,
		ConversationID:   n.ConversationID,
		NotificationCode: n.NotificationCode,
		Attachment:       n.Attachment,
		Global:           n.Global,
		Expires:          n.Expires,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func (d *notificationDoc) record() *store.Notification {
	n := &store.Notification{
		ID:               d.ID,
		Kind:             store.NotificationKind(d.Kind),
		Subject:          d.Subject,
		Body:             d.Body,
		Sender:           d.Sender,
		Object:           d.Object,
		ConversationID:   d.ConversationID,
		NotificationCode: d.NotificationCode,
		Attachment:       d.Attachment,
		Global:           d.Global,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if d.Expires != nil {
		e := d.Expires.UTC()
		n.Expires = &e
	}
	return n
}

type receiptDoc struct {
	ID             string    `bson:"_id"`
	NotificationID string    `bson:"notification_id"`
	ConversationID string    `bson:"conversation_id"`
	Receiver       store.Ref `bson:"receiver"`
	IsRead         bool      `bson:"is_read"`
	Trashed        bool      `bson:"trashed"`
	Deleted        bool      `bson:"deleted"`
	MailboxType    string    `bson:"mailbox_type"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func newReceiptDoc(r *store.Receipt) *receiptDoc {
	return &receiptDoc{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		ConversationID: r.ConversationID,
		Receiver:       r.Receiver,
		IsRead:         r.IsRead,
		Trashed:        r.Trashed,
		Deleted:        r.Deleted,
		MailboxType:    string(r.MailboxType),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (d *receiptDoc) record() *store.Receipt {
	return &store.Receipt{
		ID:             d.ID,
		NotificationID: d.NotificationID,
		ConversationID: d.ConversationID,
		Receiver:       d.Receiver,
		IsRead:         d.IsRead,
		Trashed:        d.Trashed,
		Deleted:        d.Deleted,
		MailboxType:    store.MailboxType(d.MailboxType),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

type conversationDoc struct {
	ID        string    `bson:"_id"`
	Subject   string    `bson:"subject"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *conversationDoc) record() *store.Conversation {
	return &store.Conversation{
		ID:        d.ID,
		Subject:   d.Subject,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type optOutDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Unsubscriber   store.Ref `bson:"unsubscriber"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}
