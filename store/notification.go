package store

import "time"

// NotificationKind distinguishes plain notifications from conversation messages.
type NotificationKind string

const (
	KindNotification NotificationKind = "notification"
	KindMessage      NotificationKind = "message"
)

// Notification is the persisted form of a notification or message.
// Messages carry a ConversationID and a non-zero Sender.
type Notification struct {
	ID               string           `json:"id"`
	Kind             NotificationKind `json:"kind"`
	Subject          string           `json:"subject"`
	Body             string           `json:"body"`
	Sender           Ref              `json:"sender"`
	Object           Ref              `json:"object"`
	ConversationID   string           `json:"conversation_id,omitempty"`
	NotificationCode string           `json:"notification_code,omitempty"`
	Attachment       string           `json:"attachment,omitempty"`
	Global           bool             `json:"global"`
	Expires          *time.Time       `json:"expires,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsMessage reports whether the notification belongs to a conversation.
func (n *Notification) IsMessage() bool {
	return n.Kind == KindMessage
}

// ExpiredAt reports whether the notification has an expiry at or before t.
func (n *Notification) ExpiredAt(t time.Time) bool {
	return n.Expires != nil && !n.Expires.After(t)
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.Expires != nil {
		e := *n.Expires
		c.Expires = &e
	}
	return &c
}

// NotificationQuery selects notifications by their own columns.
// Zero-valued fields are ignored.
type NotificationQuery struct {
	IDs            []string
	Kind           NotificationKind
	ConversationID string
	Sender         Ref
	Object         Ref
	Global         *bool
	// Expired selects expired (true) or unexpired (false) notifications
	// relative to Now, or time.Now() when Now is zero.
	Expired *bool
	Now     time.Time
}

// Matches reports whether n satisfies the query. Stores without a query
// language use it directly.
func (q NotificationQuery) Matches(n *Notification) bool {
	if q.IDs != nil && !containsString(q.IDs, n.ID) {
		return false
	}
	if q.Kind != "" && n.Kind != q.Kind {
		return false
	}
	if q.ConversationID != "" && n.ConversationID != q.ConversationID {
		return false
	}
	if !q.Sender.IsZero() && n.Sender != q.Sender {
		return false
	}
	if !q.Object.IsZero() && n.Object != q.Object {
		return false
	}
	if q.Global != nil && n.Global != *q.Global {
		return false
	}
	if q.Expired != nil && n.ExpiredAt(q.ReferenceTime()) != *q.Expired {
		return false
	}
	return true
}

// ReferenceTime returns the instant used to evaluate Expired.
func (q NotificationQuery) ReferenceTime() time.Time {
	if q.Now.IsZero() {
		return time.Now().UTC()
	}
	return q.Now
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
