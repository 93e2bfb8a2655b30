package store

import "time"

// Conversation groups messages. Its participants and views are derived
// from the receipts of its messages.
type Conversation struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// OptOut records that a participant unsubscribed from a conversation.
type OptOut struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Unsubscriber   Ref       `json:"unsubscriber"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a copy.
func (o *OptOut) Clone() *OptOut {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// Delivery is everything one delivery persists: a new conversation
// (only when a message starts one), the notification, and its receipts.
type Delivery struct {
	Conversation *Conversation
	Notification *Notification
	Receipts     []*Receipt
}
