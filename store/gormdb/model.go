package gormdb

import (
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

type notificationModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	Kind             string `gorm:"size:32;not null"`
	Subject          string
	Body             string
	SenderType       string `gorm:"size:255"`
	SenderID         string `gorm:"size:255"`
	ObjectType       string `gorm:"size:255"`
	ObjectID         string `gorm:"size:255"`
	ConversationID   string `gorm:"size:64;index:idx_mailboxer_notifications_conversation,priority:1"`
	NotificationCode string `gorm:"size:255"`
	Attachment       string
	Global           bool
	Expires          *time.Time
	CreatedAt        time.Time `gorm:"index:idx_mailboxer_notifications_conversation,priority:2;index"`
	UpdatedAt        time.Time
}

func (notificationModel) TableName() string { return "mailboxer_notifications" }

func newNotificationModel(n *store.Notification) *notificationModel {
	return &notificationModel{
		ID:               n.ID,
		Kind:             string(n.Kind),
		Subject:          n.Subject,
		Body:             n.Body,
		SenderType:       n.Sender.Type,
		SenderID:         n.Sender.ID,
		ObjectType:       n.Object.Type,
		ObjectID:         n.Object.ID,
		ConversationID:   n.ConversationID,
		NotificationCode: n.NotificationCode,
		Attachment:       n.Attachment,
		Global:           n.Global,
		Expires:          n.Expires,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func (m *notificationModel) record() *store.Notification {
	n := &store.Notification{
		ID:               m.ID,
		Kind:             store.NotificationKind(m.Kind),
		Subject:          m.Subject,
		Body:             m.Body,
		Sender:           store.NewRef(m.SenderType, m.SenderID),
		Object:           store.NewRef(m.ObjectType, m.ObjectID),
		ConversationID:   m.ConversationID,
		NotificationCode: m.NotificationCode,
		Attachment:       m.Attachment,
		Global:           m.Global,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.Expires != nil {
		e := m.Expires.UTC()
		n.Expires = &e
	}
	return n
}

type receiptModel struct {
	ID             string `gorm:"primaryKey;size:128"`
	NotificationID string `gorm:"size:64;not null;index"`
	ConversationID string `gorm:"size:64;index"`
	ReceiverType   string `gorm:"size:255;not null;index:idx_mailboxer_receipts_receiver,priority:1"`
	ReceiverID     string `gorm:"size:255;not null;index:idx_mailboxer_receipts_receiver,priority:2"`
	IsRead         bool
	Trashed        bool
	Deleted        bool
	MailboxType    string    `gorm:"size:32"`
	CreatedAt      time.Time `gorm:"index:idx_mailboxer_receipts_receiver,priority:3"`
	UpdatedAt      time.Time
}

func (receiptModel) TableName() string { return "mailboxer_receipts" }

func newReceiptModel(r *store.Receipt) *receiptModel {
	return &receiptModel{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		ConversationID: r.ConversationID,
		ReceiverType:   r.Receiver.Type,
		ReceiverID:     r.Receiver.ID,
		IsRead:         r.IsRead,
		Trashed:        r.Trashed,
		Deleted:        r.Deleted,
		MailboxType:    string(r.MailboxType),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (m *receiptModel) record() *store.Receipt {
	return &store.Receipt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		ConversationID: m.ConversationID,
		Receiver:       store.NewRef(m.ReceiverType, m.ReceiverID),
		IsRead:         m.IsRead,
		Trashed:        m.Trashed,
		Deleted:        m.Deleted,
		MailboxType:    store.MailboxType(m.MailboxType),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type conversationModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (conversationModel) TableName() string { return "mailboxer_conversations" }

func (m *conversationModel) record() *store.Conversation {
	return &store.Conversation{
		ID:        m.ID,
		Subject:   m.Subject,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type optOutModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	ConversationID   string `gorm:"size:64;not null;uniqueIndex:idx_mailboxer_opt_outs_pair,priority:1"`
	UnsubscriberType string `gorm:"size:255;not null;uniqueIndex:idx_mailboxer_opt_outs_pair,priority:2"`
	UnsubscriberID   string `gorm:"size:255;not null;uniqueIndex:idx_mailboxer_opt_outs_pair,priority:3"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (optOutModel) TableName() string { return "mailboxer_opt_outs" }

func models() []any {
	return []any{&conversationModel{}, &notificationModel{}, &receiptModel{}, &optOutModel{}}
}
