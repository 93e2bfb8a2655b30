package mailboxer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rbaliyan/mailboxer/store"
	"go.opentelemetry.io/otel/attribute"
)

// View selects a participant's conversations by receipt state.
type View int

const (
	ViewAll      View = iota // every conversation with a receipt that is not deleted
	ViewInbox                // inbox, not trashed, not deleted
	ViewSentbox              // sentbox, not trashed, not deleted
	ViewTrash                // trashed, not deleted
	ViewUnread               // unread
	ViewNotTrash             // not trashed
)

// String returns the view name used in logs and spans.
func (v View) String() string {
	switch v {
	case ViewAll:
		return "all"
	case ViewInbox:
		return "inbox"
	case ViewSentbox:
		return "sentbox"
	case ViewTrash:
		return "trash"
	case ViewUnread:
		return "unread"
	case ViewNotTrash:
		return "not_trash"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

func (v View) filters() ([]store.Filter, error) {
	switch v {
	case ViewAll:
		return store.NotDeleted(), nil
	case ViewInbox:
		return store.InInbox(), nil
	case ViewSentbox:
		return store.InSentbox(), nil
	case ViewTrash:
		return store.InTrash(), nil
	case ViewUnread:
		return store.IsUnread(), nil
	case ViewNotTrash:
		return store.NotTrashed(), nil
	}
	return nil, fmt.Errorf("%w: unknown view %d", ErrFilterInvalid, int(v))
}

// Conversation is an ordered set of messages. Participants, originator and
// per-participant state are derived from the messages' receipts.
//
// The handle caches the message list. Changes made through the handle
// refresh it; changes made elsewhere are not seen until Reload.
type Conversation struct {
	svc *Service

	mu       sync.Mutex
	data     *store.Conversation
	messages []*store.Notification // ascending by creation, nil until loaded
}

// Conversation loads a conversation by ID.
func (s *Service) Conversation(ctx context.Context, id string) (*Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	data, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &Conversation{svc: s, data: data}, nil
}

// Conversations returns the participant's conversations in view, most
// recently active first. A nil participant yields nothing.
func (s *Service) Conversations(ctx context.Context, participant Entity, view View, opts ListOptions) ([]*Conversation, error) {
	ref, ok := refOf(participant)
	if !ok {
		return nil, nil
	}
	vf, err := view.filters()
	if err != nil {
		return nil, err
	}
	receipts, err := s.findReceipts(ctx, store.Join(store.ReceiverIs(ref), store.IsMessageReceipt(), vf))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, r := range receipts {
		if !seen[r.ConversationID] {
			seen[r.ConversationID] = true
			ids = append(ids, r.ConversationID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if opts.SortOrder == 0 {
		opts.SortOrder = SortDesc
	}
	found, err := s.store.ListConversations(ctx, ids, opts)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]*Conversation, len(found))
	for i, c := range found {
		out[i] = &Conversation{svc: s, data: c}
	}
	return out, nil
}

// ID returns the conversation ID.
func (c *Conversation) ID() string { return c.data.ID }

// Subject returns the subject the conversation started with.
func (c *Conversation) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Subject
}

// CreatedAt returns when the first message was delivered.
func (c *Conversation) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.CreatedAt
}

// UpdatedAt is the time of the last activity.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.UpdatedAt
}

// Record returns a copy of the stored form.
func (c *Conversation) Record() *store.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Clone()
}

// Reload refreshes the conversation and drops cached messages.
func (c *Conversation) Reload(ctx context.Context) error {
	if err := c.svc.checkConnected(); err != nil {
		return err
	}
	data, err := c.svc.store.GetConversation(ctx, c.data.ID)
	if err != nil {
		return mapStoreError(err)
	}
	c.mu.Lock()
	c.data = data
	c.messages = nil
	c.mu.Unlock()
	return nil
}

func (c *Conversation) invalidate() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

func (c *Conversation) loadMessages(ctx context.Context) ([]*store.Notification, error) {
	c.mu.Lock()
	cached := c.messages
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	if err := c.svc.checkConnected(); err != nil {
		return nil, err
	}
	msgs, err := c.svc.store.ListMessages(ctx, c.data.ID, SortAsc)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if msgs == nil {
		msgs = []*store.Notification{}
	}
	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	return msgs, nil
}

// Messages returns the messages, oldest first.
func (c *Conversation) Messages(ctx context.Context) ([]*Notification, error) {
	msgs, err := c.loadMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Notification, len(msgs))
	for i, m := range msgs {
		out[i] = c.svc.wrapNotification(m.Clone())
	}
	return out, nil
}

// OriginalMessage returns the first message, or nil when there is none.
func (c *Conversation) OriginalMessage(ctx context.Context) (*Notification, error) {
	msgs, err := c.loadMessages(ctx)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return c.svc.wrapNotification(msgs[0].Clone()), nil
}

// LastMessage returns the most recent message, or nil when there is none.
func (c *Conversation) LastMessage(ctx context.Context) (*Notification, error) {
	msgs, err := c.loadMessages(ctx)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return c.svc.wrapNotification(msgs[len(msgs)-1].Clone()), nil
}

// Originator returns the sender of the first message.
func (c *Conversation) Originator(ctx context.Context) (Ref, error) {
	m, err := c.OriginalMessage(ctx)
	if err != nil || m == nil {
		return Ref{}, err
	}
	return m.Sender(), nil
}

// LastSender returns the sender of the last message.
func (c *Conversation) LastSender(ctx context.Context) (Ref, error) {
	m, err := c.LastMessage(ctx)
	if err != nil || m == nil {
		return Ref{}, err
	}
	return m.Sender(), nil
}

// CountMessages returns the number of messages.
func (c *Conversation) CountMessages(ctx context.Context) (int, error) {
	msgs, err := c.loadMessages(ctx)
	return len(msgs), err
}

// Recipients returns the receivers of the original message, the originator
// included. It is empty for a conversation without messages.
func (c *Conversation) Recipients(ctx context.Context) ([]Ref, error) {
	m, err := c.OriginalMessage(ctx)
	if err != nil || m == nil {
		return nil, err
	}
	return m.Recipients(ctx)
}

// Participants is Recipients.
func (c *Conversation) Participants(ctx context.Context) ([]Ref, error) {
	return c.Recipients(ctx)
}

// ReceiptsFor returns the participant's receipts in this conversation.
func (c *Conversation) ReceiptsFor(ctx context.Context, participant Entity) ([]*Receipt, error) {
	ref, ok := refOf(participant)
	if !ok {
		return nil, nil
	}
	found, err := c.svc.findReceipts(ctx, c.receiptsOf(ref))
	if err != nil {
		return nil, err
	}
	out := make([]*Receipt, len(found))
	for i, r := range found {
		out[i] = c.svc.wrapReceipt(r)
	}
	return out, nil
}

func (c *Conversation) receiptsOf(ref Ref) []store.Filter {
	return store.Join(store.ConversationIs(c.data.ID), store.ReceiverIs(ref))
}

func (c *Conversation) count(ctx context.Context, ref Ref, extra ...store.Filter) (int64, error) {
	return c.svc.countReceipts(ctx, c.receiptsOf(ref), extra)
}

// --- Predicates ---

// IsParticipant reports whether the participant holds any receipt here.
func (c *Conversation) IsParticipant(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	n, err := c.count(ctx, ref)
	return n > 0, err
}

// IsUnread reports whether the participant has an unread receipt that is
// not trashed.
func (c *Conversation) IsUnread(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	n, err := c.count(ctx, ref, store.Join(store.NotTrashed(), store.IsUnread())...)
	return n != 0, err
}

// IsRead is the negation of IsUnread for a non-nil participant.
func (c *Conversation) IsRead(ctx context.Context, participant Entity) (bool, error) {
	if _, ok := refOf(participant); !ok {
		return false, nil
	}
	unread, err := c.IsUnread(ctx, participant)
	return !unread && err == nil, err
}

// IsTrashed reports whether the participant has at least one receipt in
// the trash.
func (c *Conversation) IsTrashed(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	n, err := c.count(ctx, ref, store.InTrash()...)
	return n != 0, err
}

// IsCompletelyTrashed reports whether every receipt of the participant is
// in the trash.
func (c *Conversation) IsCompletelyTrashed(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	return c.allMatch(ctx, ref, store.InTrash())
}

// IsDeleted reports whether every receipt of the participant is deleted.
// A participant with no receipts counts as deleted.
func (c *Conversation) IsDeleted(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	return c.allMatch(ctx, ref, store.IsDeleted())
}

func (c *Conversation) allMatch(ctx context.Context, ref Ref, filters []store.Filter) (bool, error) {
	total, err := c.count(ctx, ref)
	if err != nil {
		return false, err
	}
	matched, err := c.count(ctx, ref, filters...)
	if err != nil {
		return false, err
	}
	return matched == total, nil
}

// IsOrphaned reports whether every participant has deleted the
// conversation. A conversation without participants is orphaned.
func (c *Conversation) IsOrphaned(ctx context.Context) (bool, error) {
	refs, err := c.Recipients(ctx)
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		deleted, err := c.IsDeleted(ctx, ref)
		if err != nil || !deleted {
			return false, err
		}
	}
	return true, nil
}

// --- Mutators ---

// MarkAsRead marks every receipt the participant holds here read.
func (c *Conversation) MarkAsRead(ctx context.Context, participant Entity) (bool, error) {
	return c.apply(ctx, participant, ActionMarkRead)
}

// MarkAsUnread marks every receipt the participant holds here unread.
func (c *Conversation) MarkAsUnread(ctx context.Context, participant Entity) (bool, error) {
	return c.apply(ctx, participant, ActionMarkUnread)
}

// MoveToTrash trashes the participant's receipts in the conversation.
func (c *Conversation) MoveToTrash(ctx context.Context, participant Entity) (bool, error) {
	return c.apply(ctx, participant, ActionTrash)
}

// Untrash restores the participant's receipts from the trash.
func (c *Conversation) Untrash(ctx context.Context, participant Entity) (bool, error) {
	return c.apply(ctx, participant, ActionUntrash)
}

func (c *Conversation) apply(ctx context.Context, participant Entity, action ReceiptAction) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	n, err := c.svc.updateScoped(ctx, action, receiptScope{participant: ref, conversationID: c.data.ID})
	return n > 0, err
}

// MarkAsDeleted deletes the conversation for the participant. When that
// leaves it orphaned the conversation is destroyed, with its messages,
// receipts and opt-outs; the result reports whether that happened.
func (c *Conversation) MarkAsDeleted(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	if _, err := c.svc.updateScoped(ctx, ActionDelete, receiptScope{participant: ref, conversationID: c.data.ID}); err != nil {
		return false, err
	}
	orphaned, err := c.IsOrphaned(ctx)
	if err != nil || !orphaned {
		return false, err
	}
	return c.svc.destroyConversation(ctx, c.data.ID)
}

// destroyConversation deletes an orphaned conversation. A conversation that
// is already gone is not an error; the result reports whether this call
// removed it.
func (s *Service) destroyConversation(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "mailboxer.DestroyConversation",
		attribute.String("conversation_id", id),
	)
	err := s.store.DeleteConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		endSpan(nil)
		s.logger.Debug("conversation already destroyed", "conversation_id", id)
		return false, nil
	}
	err = mapStoreError(err)
	endSpan(err)
	s.otel.recordOp(ctx, time.Since(start), "destroy_conversation", 0, err)
	if err != nil {
		return false, err
	}
	s.otel.recordDestroyed(ctx)
	s.logger.Info("destroyed orphaned conversation", "conversation_id", id)

	if s.events != nil {
		ev := ConversationDestroyedEvent{ConversationID: id, DestroyedAt: s.now()}
		if err := publish(ctx, s, s.events.ConversationDestroyed, EventNameConversationDestroyed, id, ev); err != nil {
			return true, err
		}
	}
	return true, nil
}

// AddParticipant gives the participant an inbox receipt for every existing
// message, carrying that message's timestamps. Receipts are created one at
// a time; on failure the receipts already created are kept and the error
// names the message that failed. It returns how many receipts were created.
func (c *Conversation) AddParticipant(ctx context.Context, participant Entity) (int, error) {
	ref, ok := refOf(participant)
	if !ok {
		return 0, nil
	}
	if err := c.svc.checkConnected(); err != nil {
		return 0, err
	}
	msgs, err := c.svc.store.ListMessages(ctx, c.data.ID, SortAsc)
	if err != nil {
		return 0, mapStoreError(err)
	}
	c.invalidate()

	created := 0
	for _, m := range msgs {
		r := ReceiptBuilder{
			Notification: m,
			MailboxType:  store.MailboxInbox,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		}.Build(ref)
		if err := c.svc.store.CreateReceipt(ctx, r); err != nil {
			return created, fmt.Errorf("add participant to message %s: %w", m.ID, mapStoreError(err))
		}
		created++
	}

	if c.svc.events != nil {
		ev := ParticipantEvent{ConversationID: c.data.ID, Participant: ref, At: c.svc.now()}
		if err := publish(ctx, c.svc, c.svc.events.ParticipantAdded, EventNameParticipantAdded, c.data.ID, ev); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Reply adds a message to this conversation. See Service.Reply.
func (c *Conversation) Reply(ctx context.Context, sender Participant, recipients []Participant, subject, body string, opts ...NotifyOption) (*Receipt, error) {
	defer c.invalidate()
	return c.svc.Reply(ctx, c.data.ID, sender, recipients, subject, body, opts...)
}

// ReplyToAll replies to every subscribed participant. See Service.ReplyToAll.
func (c *Conversation) ReplyToAll(ctx context.Context, sender Participant, subject, body string, opts ...NotifyOption) (*Receipt, error) {
	defer c.invalidate()
	return c.svc.ReplyToAll(ctx, c.data.ID, sender, subject, body, opts...)
}

// --- Opt-out ---

// HasSubscriber reports whether the participant has not opted out.
func (c *Conversation) HasSubscriber(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	if err := c.svc.checkConnected(); err != nil {
		return false, err
	}
	n, err := c.svc.store.CountOptOuts(ctx, c.data.ID, ref)
	if err != nil {
		return false, mapStoreError(err)
	}
	return n == 0, nil
}

// OptOut stops the participant from being included by ReplyToAll. It does
// nothing for a participant that already opted out or holds no undeleted
// receipt here.
func (c *Conversation) OptOut(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	subscribed, err := c.HasSubscriber(ctx, ref)
	if err != nil || !subscribed {
		return false, err
	}
	active, err := c.count(ctx, ref, store.NotDeleted()...)
	if err != nil || active == 0 {
		return false, err
	}

	now := c.svc.now()
	err = c.svc.store.CreateOptOut(ctx, &store.OptOut{
		ID:             newID(),
		ConversationID: c.data.ID,
		Unsubscriber:   ref,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, store.ErrDuplicateEntry) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}

	if c.svc.events != nil {
		ev := ParticipantEvent{ConversationID: c.data.ID, Participant: ref, At: now}
		if err := publish(ctx, c.svc, c.svc.events.ParticipantOptedOut, EventNameParticipantOptedOut, c.data.ID, ev); err != nil {
			return true, err
		}
	}
	return true, nil
}

// OptIn removes every opt-out of the participant. It reports whether any
// existed.
func (c *Conversation) OptIn(ctx context.Context, participant Entity) (bool, error) {
	ref, ok := refOf(participant)
	if !ok {
		return false, nil
	}
	if err := c.svc.checkConnected(); err != nil {
		return false, err
	}
	n, err := c.svc.store.DeleteOptOuts(ctx, c.data.ID, ref)
	if err != nil {
		return false, mapStoreError(err)
	}
	if n == 0 {
		return false, nil
	}

	if c.svc.events != nil {
		ev := ParticipantEvent{ConversationID: c.data.ID, Participant: ref, At: c.svc.now()}
		if err := publish(ctx, c.svc, c.svc.events.ParticipantOptedIn, EventNameParticipantOptedIn, c.data.ID, ev); err != nil {
			return true, err
		}
	}
	return true, nil
}
