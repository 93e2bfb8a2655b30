package mailboxer

import (
	"context"
	"time"

	"github.com/rbaliyan/mailboxer/store"
	"go.opentelemetry.io/otel/attribute"
)

// deliver runs the delivery pipeline for n. It returns a nil Delivery when
// nothing was persisted. A non-nil Delivery with an error means the
// delivery succeeded but a fatal event publish failed.
func (s *Service) deliver(ctx context.Context, n *Notification) (*Delivery, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := s.deliverSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.deliverSem.Release(1)

	start := time.Now()
	kind := string(n.data.Kind)
	ctx, endSpan := s.otel.startSpan(ctx, "mailboxer.Deliver",
		attribute.String("kind", kind),
		attribute.Int("recipients", len(n.recipients)),
	)

	d, receipts, err := s.persist(ctx, n)
	endSpan(err)
	s.otel.recordDeliver(ctx, time.Since(start), kind, receipts, err)
	if d == nil {
		return nil, err
	}

	s.logger.Debug("delivered",
		"notification_id", n.data.ID,
		"kind", kind,
		"receipts", receipts)
	return d, err
}

// persist validates, stores and announces one delivery.
func (s *Service) persist(ctx context.Context, n *Notification) (*Delivery, int, error) {
	now := s.now()
	data := n.data
	clean := s.opts.cleaner.Clean
	data.Subject = clean(data.Subject)
	data.Body = clean(data.Body)
	data.CreatedAt, data.UpdatedAt = now, now
	if n.conversation != nil {
		n.conversation.Subject = clean(n.conversation.Subject)
		n.conversation.CreatedAt, n.conversation.UpdatedAt = now, now
	}

	receipts, recipients := buildReceipts(data, n.recipients)
	if errs := s.validator.validateDelivery(data, n.conversation, receipts); len(errs) > 0 {
		return nil, 0, errs
	}

	if err := s.plugins.beforeDeliver(ctx, n); err != nil {
		return nil, 0, err
	}

	err := s.store.CreateDelivery(ctx, &store.Delivery{
		Conversation: n.conversation,
		Notification: data,
		Receipts:     receipts,
	})
	if err != nil {
		return nil, 0, mapStoreError(err)
	}

	if n.sendMail {
		s.dispatch(ctx, n, recipients)
	}

	if n.reply {
		if err := s.store.TouchConversation(ctx, data.ConversationID, now); err != nil {
			s.logger.Warn("failed to touch conversation",
				"conversation_id", data.ConversationID,
				"error", err)
		}
	}

	d := &Delivery{Notification: n, Receipts: make([]*Receipt, len(receipts))}
	for i, r := range receipts {
		d.Receipts[i] = s.wrapReceipt(r)
	}

	pubErr := s.publishDelivered(ctx, n, recipients, now)

	if err := s.plugins.afterDeliver(ctx, n); err != nil {
		s.logger.Warn("after-deliver hook failed",
			"notification_id", data.ID,
			"error", err)
	}
	return d, len(receipts), pubErr
}

func (s *Service) publishDelivered(ctx context.Context, n *Notification, recipients []Participant, at time.Time) error {
	if s.events == nil {
		return nil
	}
	refs := make([]Ref, 0, len(recipients))
	for _, p := range recipients {
		if ref, ok := refOf(p); ok {
			refs = append(refs, ref)
		}
	}
	ev := DeliveredEvent{
		NotificationID: n.data.ID,
		ConversationID: n.data.ConversationID,
		Sender:         n.data.Sender,
		Recipients:     refs,
		Subject:        n.data.Subject,
		Reply:          n.reply,
		DeliveredAt:    at,
	}
	if n.IsMessage() {
		return publish(ctx, s, s.events.MessageDelivered, EventNameMessageDelivered, n.data.ID, ev)
	}
	return publish(ctx, s, s.events.NotificationDelivered, EventNameNotificationDelivered, n.data.ID, ev)
}
