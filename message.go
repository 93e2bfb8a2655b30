package mailboxer

import (
	"context"
	"fmt"

	"github.com/rbaliyan/mailboxer/store"
)

// NewMessage builds an undelivered message that starts a new conversation
// with the same subject. Call Deliver to persist both.
func (s *Service) NewMessage(sender Participant, recipients []Participant, subject, body string, opts ...NotifyOption) *Notification {
	conv := &store.Conversation{ID: newID(), Subject: subject}
	n := s.newMessage(conv.ID, sender, recipients, subject, body, opts)
	n.conversation = conv
	return n
}

func (s *Service) newMessage(conversationID string, sender Participant, recipients []Participant, subject, body string, opts []NotifyOption) *Notification {
	n := s.NewNotification(recipients, subject, body, opts...)
	n.data.Kind = store.KindMessage
	n.data.ConversationID = conversationID
	n.data.Sender = Ref{}
	if ref, ok := refOf(sender); ok {
		n.data.Sender = ref
	}
	return n
}

// SendMessage starts a conversation and delivers its first message. It
// returns the sender's sentbox receipt.
func (s *Service) SendMessage(ctx context.Context, sender Participant, recipients []Participant, subject, body string, opts ...NotifyOption) (*Receipt, error) {
	d, err := s.NewMessage(sender, recipients, subject, body, opts...).Deliver(ctx)
	if d == nil {
		return nil, err
	}
	return d.SenderReceipt(), err
}

// Reply delivers a message to recipients in an existing conversation and
// touches the conversation. An empty subject reuses the conversation's.
func (s *Service) Reply(ctx context.Context, conversationID string, sender Participant, recipients []Participant, subject, body string, opts ...NotifyOption) (*Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if subject == "" {
		subject = conv.Subject
	}

	n := s.newMessage(conv.ID, sender, recipients, subject, body, opts)
	n.reply = true
	d, err := n.Deliver(ctx)
	if d == nil {
		return nil, err
	}
	return d.SenderReceipt(), err
}

// ReplyToAll replies to every participant of the conversation except the
// sender. Participants who opted out are skipped.
func (s *Service) ReplyToAll(ctx context.Context, conversationID string, sender Participant, subject, body string, opts ...NotifyOption) (*Receipt, error) {
	c, err := s.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	refs, err := c.Recipients(ctx)
	if err != nil {
		return nil, err
	}
	subscribed := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		ok, err := c.HasSubscriber(ctx, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			subscribed = append(subscribed, ref)
		}
	}
	recipients, err := s.resolveAll(ctx, subscribed)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return s.Reply(ctx, conversationID, sender, recipients, subject, body, opts...)
}

// ReplyToSender replies to the sender of the message the receipt belongs to.
func (s *Service) ReplyToSender(ctx context.Context, receipt *Receipt, sender Participant, body string, opts ...NotifyOption) (*Receipt, error) {
	if receipt == nil || receipt.ConversationID() == "" {
		return nil, ErrNotAMessage
	}
	msg, err := receipt.Notification(ctx)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveAll(ctx, []Ref{msg.Sender()})
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	return s.Reply(ctx, msg.ConversationID(), sender, to, msg.Subject(), body, opts...)
}
