package mailboxer

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/mailboxer/store"
	"go.opentelemetry.io/otel/attribute"
)

// ReceiptAction is a state change applied to receipts.
type ReceiptAction string

const (
	ActionMarkRead      ReceiptAction = "mark_read"
	ActionMarkUnread    ReceiptAction = "mark_unread"
	ActionTrash         ReceiptAction = "trash"
	ActionUntrash       ReceiptAction = "untrash"
	ActionDelete        ReceiptAction = "delete"
	ActionUndelete      ReceiptAction = "undelete"
	ActionMoveToInbox   ReceiptAction = "move_to_inbox"
	ActionMoveToSentbox ReceiptAction = "move_to_sentbox"
)

// Update returns the field changes the action makes. Moving a receipt to a
// mailbox also takes it out of the trash.
func (a ReceiptAction) Update() (store.ReceiptUpdate, error) {
	switch a {
	case ActionMarkRead:
		return store.ReceiptUpdate{IsRead: store.Bool(true)}, nil
	case ActionMarkUnread:
		return store.ReceiptUpdate{IsRead: store.Bool(false)}, nil
	case ActionTrash:
		return store.ReceiptUpdate{Trashed: store.Bool(true)}, nil
	case ActionUntrash:
		return store.ReceiptUpdate{Trashed: store.Bool(false)}, nil
	case ActionDelete:
		return store.ReceiptUpdate{Deleted: store.Bool(true)}, nil
	case ActionUndelete:
		return store.ReceiptUpdate{Deleted: store.Bool(false)}, nil
	case ActionMoveToInbox:
		return store.ReceiptUpdate{MailboxType: store.Mailbox(store.MailboxInbox), Trashed: store.Bool(false)}, nil
	case ActionMoveToSentbox:
		return store.ReceiptUpdate{MailboxType: store.Mailbox(store.MailboxSentbox), Trashed: store.Bool(false)}, nil
	}
	return store.ReceiptUpdate{}, fmt.Errorf("mailboxer: unknown receipt action %q", string(a))
}

// Receipt is one participant's mailbox state for one notification.
// Getters reflect the state at load time plus this handle's own changes.
type Receipt struct {
	svc  *Service
	data *store.Receipt
}

func (s *Service) wrapReceipt(r *store.Receipt) *Receipt {
	return &Receipt{svc: s, data: r}
}

// Receipt loads a receipt by ID.
func (s *Service) Receipt(ctx context.Context, id string) (*Receipt, error) {
	found, err := s.findReceipts(ctx, store.ReceiptIs(id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}
	return s.wrapReceipt(found[0]), nil
}

func (r *Receipt) ID() string                     { return r.data.ID }
func (r *Receipt) NotificationID() string         { return r.data.NotificationID }
func (r *Receipt) ConversationID() string         { return r.data.ConversationID }
func (r *Receipt) Receiver() Ref                  { return r.data.Receiver }
func (r *Receipt) IsRead() bool                   { return r.data.IsRead }
func (r *Receipt) Trashed() bool                  { return r.data.Trashed }
func (r *Receipt) Deleted() bool                  { return r.data.Deleted }
func (r *Receipt) MailboxType() store.MailboxType { return r.data.MailboxType }
func (r *Receipt) CreatedAt() time.Time           { return r.data.CreatedAt }
func (r *Receipt) UpdatedAt() time.Time           { return r.data.UpdatedAt }

// Record returns a copy of the stored form.
func (r *Receipt) Record() *store.Receipt { return r.data.Clone() }

// Notification loads the notification or message the receipt belongs to.
func (r *Receipt) Notification(ctx context.Context) (*Notification, error) {
	return r.svc.Notification(ctx, r.data.NotificationID)
}

// Conversation loads the conversation of a message receipt.
func (r *Receipt) Conversation(ctx context.Context) (*Conversation, error) {
	if r.data.ConversationID == "" {
		return nil, ErrNotAMessage
	}
	return r.svc.Conversation(ctx, r.data.ConversationID)
}

// MarkAsRead marks the receipt read.
func (r *Receipt) MarkAsRead(ctx context.Context) error {
	return r.apply(ctx, ActionMarkRead)
}

// MarkAsUnread marks the receipt unread.
func (r *Receipt) MarkAsUnread(ctx context.Context) error {
	return r.apply(ctx, ActionMarkUnread)
}

// MoveToTrash moves the receipt to the trash.
func (r *Receipt) MoveToTrash(ctx context.Context) error {
	return r.apply(ctx, ActionTrash)
}

// Untrash takes the receipt out of the trash.
func (r *Receipt) Untrash(ctx context.Context) error {
	return r.apply(ctx, ActionUntrash)
}

// MarkAsDeleted hides the receipt from every view.
func (r *Receipt) MarkAsDeleted(ctx context.Context) error {
	return r.apply(ctx, ActionDelete)
}

// MarkAsNotDeleted undoes MarkAsDeleted.
func (r *Receipt) MarkAsNotDeleted(ctx context.Context) error {
	return r.apply(ctx, ActionUndelete)
}

// MoveToInbox sets the receipt's mailbox to inbox.
func (r *Receipt) MoveToInbox(ctx context.Context) error {
	return r.apply(ctx, ActionMoveToInbox)
}

// MoveToSentbox sets the receipt's mailbox to sentbox.
func (r *Receipt) MoveToSentbox(ctx context.Context) error {
	return r.apply(ctx, ActionMoveToSentbox)
}

// apply persists action for this receipt and mirrors it locally.
func (r *Receipt) apply(ctx context.Context, action ReceiptAction) error {
	u, err := action.Update()
	if err != nil {
		return err
	}
	n, err := r.svc.updateReceipts(ctx, action, store.ReceiptIs(r.data.ID), receiptScope{
		participant:    r.data.Receiver,
		notificationID: r.data.NotificationID,
		conversationID: r.data.ConversationID,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: receipt %s", ErrNotFound, r.data.ID)
	}
	next := r.data.Clone()
	u.Apply(next, r.svc.now())
	r.data = next
	return nil
}

// receiptScope narrows an update to a participant and optionally one
// notification or conversation. It also labels the published event.
type receiptScope struct {
	participant    Ref
	notificationID string
	conversationID string
	extra          []store.Filter
}

func (sc receiptScope) filters() []store.Filter {
	var f []store.Filter
	if !sc.participant.IsZero() {
		f = append(f, store.ReceiverIs(sc.participant)...)
	}
	if sc.notificationID != "" {
		f = append(f, store.NotificationIs(sc.notificationID)...)
	}
	if sc.conversationID != "" {
		f = append(f, store.ConversationIs(sc.conversationID)...)
	}
	return append(f, sc.extra...)
}

// updateScoped applies action to every receipt in scope.
func (s *Service) updateScoped(ctx context.Context, action ReceiptAction, sc receiptScope) (int64, error) {
	return s.updateReceipts(ctx, action, sc.filters(), sc)
}

func (s *Service) updateReceipts(ctx context.Context, action ReceiptAction, filters []store.Filter, sc receiptScope) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	u, err := action.Update()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "mailboxer.UpdateReceipts",
		attribute.String("action", string(action)),
	)
	n, err := s.store.UpdateReceipts(ctx, filters, u)
	err = mapStoreError(err)
	endSpan(err)
	s.otel.recordOp(ctx, time.Since(start), string(action), n, err)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		s.logger.Debug("receipt update matched nothing", "action", action)
		return 0, nil
	}

	if s.events != nil {
		ev := ReceiptsUpdatedEvent{
			Action:         action,
			Participant:    sc.participant,
			NotificationID: sc.notificationID,
			ConversationID: sc.conversationID,
			Count:          n,
			UpdatedAt:      s.now(),
		}
		entity := sc.notificationID
		if entity == "" {
			entity = sc.conversationID
		}
		if err := publish(ctx, s, s.events.ReceiptsUpdated, EventNameReceiptsUpdated, entity, ev); err != nil {
			return n, err
		}
	}
	return n, nil
}

// UpdateReceipts applies action to every receipt matching filters and
// returns how many matched. Receipts outside the filters are never touched.
func (s *Service) UpdateReceipts(ctx context.Context, filters []Filter, action ReceiptAction) (int64, error) {
	return s.updateReceipts(ctx, action, filters, receiptScope{})
}

// MarkReceipts applies action to the participant's receipts among ids.
// A nil participant or an empty id list is a no-op.
func (s *Service) MarkReceipts(ctx context.Context, participant Entity, action ReceiptAction, ids ...string) (int64, error) {
	ref, ok := refOf(participant)
	if !ok || len(ids) == 0 {
		return 0, nil
	}
	in := make([]any, len(ids))
	for i, id := range ids {
		in[i] = id
	}
	f, err := store.ReceiptFilter("id").In(in...)
	if err != nil {
		return 0, err
	}
	return s.updateScoped(ctx, action, receiptScope{participant: ref, extra: []store.Filter{f}})
}

// Receipts returns receipts matching filters ordered by creation time.
func (s *Service) Receipts(ctx context.Context, filters []Filter, opts ListOptions) ([]*Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	found, err := s.store.FindReceipts(ctx, filters, opts)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]*Receipt, len(found))
	for i, r := range found {
		out[i] = s.wrapReceipt(r)
	}
	return out, nil
}

// CountReceipts counts receipts matching filters.
func (s *Service) CountReceipts(ctx context.Context, filters []Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	n, err := s.store.CountReceipts(ctx, filters)
	return n, mapStoreError(err)
}

func (s *Service) findReceipts(ctx context.Context, filters []store.Filter) ([]*store.Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	found, err := s.store.FindReceipts(ctx, filters, ListOptions{})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return found, nil
}

func (s *Service) countReceipts(ctx context.Context, groups ...[]store.Filter) (int64, error) {
	return s.CountReceipts(ctx, store.Join(groups...))
}
