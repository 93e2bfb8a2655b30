// Package dispatch provides building blocks for out-of-band delivery:
// the outbox envelope written by the object storage dispatchers, fan-out to
// several dispatchers, and retries.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/rbaliyan/mailboxer"
)

// Recipient is a participant the relay should contact.
type Recipient struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Envelope is the document an outbox dispatcher hands to an external relay.
type Envelope struct {
	NotificationID   string          `json:"notification_id"`
	Kind             string          `json:"kind"`
	Subject          string          `json:"subject"`
	Body             string          `json:"body"`
	Sender           mailboxer.Ref   `json:"sender"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	NotificationCode string          `json:"notification_code,omitempty"`
	Attachment       string          `json:"attachment,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Recipients       []Recipient     `json:"recipients"`
	Skipped          []mailboxer.Ref `json:"skipped,omitempty"`
}

// NewEnvelope resolves each recipient's address for n. Recipients without an
// address, and nil recipients, are listed in Skipped.
func NewEnvelope(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) *Envelope {
	env := &Envelope{
		NotificationID:   n.ID(),
		Kind:             string(n.Kind()),
		Subject:          n.Subject(),
		Body:             n.Body(),
		Sender:           n.Sender(),
		ConversationID:   n.ConversationID(),
		NotificationCode: n.NotificationCode(),
		Attachment:       n.Attachment(),
		CreatedAt:        n.CreatedAt(),
		Recipients:       make([]Recipient, 0, len(recipients)),
	}
	for _, p := range recipients {
		if p == nil {
			continue
		}
		ref := p.MailboxRef()
		addr, ok := p.MailboxAddress(ctx, n)
		if !ok || addr == "" {
			env.Skipped = append(env.Skipped, ref)
			continue
		}
		env.Recipients = append(env.Recipients, Recipient{Type: ref.Type, ID: ref.ID, Address: addr})
	}
	return env
}

// Empty reports whether no recipient can be contacted.
func (e *Envelope) Empty() bool {
	return len(e.Recipients) == 0
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return b, nil
}

// ObjectKey returns a unique object name under prefix, partitioned by the
// notification's creation date.
func (e *Envelope) ObjectKey(prefix string) string {
	day := e.CreatedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, e.NotificationID+"-"+uuid.NewString()+".json")
}
