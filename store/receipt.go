package store

import "time"

// MailboxType is the placement of a receipt within a participant's mailbox.
type MailboxType string

const (
	// MailboxNone is used by receipts of plain notifications.
	MailboxNone    MailboxType = ""
	MailboxInbox   MailboxType = "inbox"
	MailboxSentbox MailboxType = "sentbox"
)

// Receipt is one participant's copy of one notification.
type Receipt struct {
	ID             string      `json:"id"`
	NotificationID string      `json:"notification_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Receiver       Ref         `json:"receiver"`
	IsRead         bool        `json:"is_read"`
	Trashed        bool        `json:"trashed"`
	Deleted        bool        `json:"deleted"`
	MailboxType    MailboxType `json:"mailbox_type"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Clone returns a copy.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ReceiptUpdate lists the receipt fields to set. Nil fields are left as they are.
type ReceiptUpdate struct {
	IsRead      *bool
	Trashed     *bool
	Deleted     *bool
	MailboxType *MailboxType
}

// IsEmpty reports whether the update sets nothing.
func (u ReceiptUpdate) IsEmpty() bool {
	return u.IsRead == nil && u.Trashed == nil && u.Deleted == nil && u.MailboxType == nil
}

// Apply sets the update's fields on r and stamps UpdatedAt.
func (u ReceiptUpdate) Apply(r *Receipt, now time.Time) {
	if u.IsRead != nil {
		r.IsRead = *u.IsRead
	}
	if u.Trashed != nil {
		r.Trashed = *u.Trashed
	}
	if u.Deleted != nil {
		r.Deleted = *u.Deleted
	}
	if u.MailboxType != nil {
		r.MailboxType = *u.MailboxType
	}
	r.UpdatedAt = now
}

// Columns returns the storage keys and values the update sets,
// in a stable order.
func (u ReceiptUpdate) Columns() ([]string, []any) {
	var keys []string
	var values []any
	if u.IsRead != nil {
		keys = append(keys, "is_read")
		values = append(values, *u.IsRead)
	}
	if u.Trashed != nil {
		keys = append(keys, "trashed")
		values = append(values, *u.Trashed)
	}
	if u.Deleted != nil {
		keys = append(keys, "deleted")
		values = append(values, *u.Deleted)
	}
	if u.MailboxType != nil {
		keys = append(keys, "mailbox_type")
		values = append(values, string(*u.MailboxType))
	}
	return keys, values
}

// Bool returns a pointer to b, for building updates.
func Bool(b bool) *bool { return &b }

// Mailbox returns a pointer to t, for building updates.
func Mailbox(t MailboxType) *MailboxType { return &t }
