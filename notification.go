package mailboxer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

// Delivery states of a Notification handle.
const (
	pending int32 = iota
	delivering
	delivered
)

// Notification is a notification or a conversation message.
//
// A handle built with NewNotification carries a transient recipient list
// until Deliver succeeds; handles loaded from the store are already
// delivered. Messages are notifications whose Kind is store.KindMessage.
type Notification struct {
	svc   *Service
	state int32

	mu   sync.Mutex // guards data.Expires and data.UpdatedAt
	data *store.Notification

	// Transient, only meaningful before delivery.
	recipients   []Participant
	conversation *store.Conversation // set when a message starts a conversation
	sendMail     bool
	reply        bool
}

// NotifyOption configures a notification or message before delivery.
type NotifyOption func(*notifyConfig)

type notifyConfig struct {
	sender     Ref
	object     Ref
	code       string
	attachment string
	global     bool
	expires    *time.Time
	sendMail   bool
}

func newNotifyConfig(opts []NotifyOption) notifyConfig {
	c := notifyConfig{sendMail: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithSender sets the sender of a plain notification. Messages take their
// sender as an argument instead.
func WithSender(e Entity) NotifyOption {
	return func(c *notifyConfig) {
		if ref, ok := refOf(e); ok {
			c.sender = ref
		}
	}
}

// WithObject links the notification to the entity it is about.
func WithObject(e Entity) NotifyOption {
	return func(c *notifyConfig) {
		if ref, ok := refOf(e); ok {
			c.object = ref
		}
	}
}

// WithNotificationCode tags the notification with an application code.
func WithNotificationCode(code string) NotifyOption {
	return func(c *notifyConfig) {
		c.code = code
	}
}

// WithAttachment stores a reference (URL or object key) to an attachment.
func WithAttachment(ref string) NotifyOption {
	return func(c *notifyConfig) {
		c.attachment = ref
	}
}

// WithGlobal marks the notification as global.
func WithGlobal() NotifyOption {
	return func(c *notifyConfig) {
		c.global = true
	}
}

// WithExpiry sets when the notification expires.
func WithExpiry(t time.Time) NotifyOption {
	return func(c *notifyConfig) {
		if !t.IsZero() {
			t = t.UTC()
			c.expires = &t
		}
	}
}

// WithSendMail controls whether the Dispatcher is invoked. Default true.
func WithSendMail(send bool) NotifyOption {
	return func(c *notifyConfig) {
		c.sendMail = send
	}
}

// NewNotification builds an undelivered notification. Call Deliver to
// persist it.
func (s *Service) NewNotification(recipients []Participant, subject, body string, opts ...NotifyOption) *Notification {
	c := newNotifyConfig(opts)
	return &Notification{
		svc: s,
		data: &store.Notification{
			ID:               newID(),
			Kind:             store.KindNotification,
			Subject:          subject,
			Body:             body,
			Sender:           c.sender,
			Object:           c.object,
			NotificationCode: c.code,
			Attachment:       c.attachment,
			Global:           c.global,
			Expires:          c.expires,
		},
		recipients: append([]Participant(nil), recipients...),
		sendMail:   c.sendMail,
	}
}

// NotifyAll builds and delivers a notification to every recipient.
func (s *Service) NotifyAll(ctx context.Context, recipients []Participant, subject, body string, opts ...NotifyOption) (*Delivery, error) {
	return s.NewNotification(recipients, subject, body, opts...).Deliver(ctx)
}

// Notification loads a notification or message by ID.
func (s *Service) Notification(ctx context.Context, id string) (*Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	data, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s.wrapNotification(data), nil
}

func (s *Service) wrapNotification(data *store.Notification) *Notification {
	return &Notification{svc: s, data: data, state: delivered}
}

// Deliver validates and persists the notification and one receipt per
// recipient, then dispatches it. Nothing is persisted when any part is
// invalid. After a successful delivery the recipient list is cleared and
// further calls return ErrAlreadyDelivered.
func (n *Notification) Deliver(ctx context.Context) (*Delivery, error) {
	if !atomic.CompareAndSwapInt32(&n.state, pending, delivering) {
		return nil, ErrAlreadyDelivered
	}
	d, err := n.svc.deliver(ctx, n)
	if d == nil {
		atomic.StoreInt32(&n.state, pending)
		return nil, err
	}
	n.recipients = nil
	atomic.StoreInt32(&n.state, delivered)
	return d, err
}

// Delivery is the result of one delivery.
type Delivery struct {
	Notification *Notification
	// Receipts holds one receipt per recipient in recipient order, followed
	// by the sender's receipt for messages.
	Receipts []*Receipt
}

// Receipt returns the only receipt of a single-recipient notification, or nil.
func (d *Delivery) Receipt() *Receipt {
	if len(d.Receipts) != 1 {
		return nil
	}
	return d.Receipts[0]
}

// SenderReceipt returns the sender's sentbox receipt of a message, or nil.
func (d *Delivery) SenderReceipt() *Receipt {
	if d.Notification == nil || !d.Notification.IsMessage() || len(d.Receipts) == 0 {
		return nil
	}
	return d.Receipts[len(d.Receipts)-1]
}

// Accessors

func (n *Notification) ID() string                   { return n.data.ID }
func (n *Notification) Kind() store.NotificationKind { return n.data.Kind }
func (n *Notification) IsMessage() bool              { return n.data.IsMessage() }
func (n *Notification) Subject() string              { return n.data.Subject }
func (n *Notification) Body() string                 { return n.data.Body }
func (n *Notification) Sender() Ref                  { return n.data.Sender }
func (n *Notification) Object() Ref                  { return n.data.Object }
func (n *Notification) ConversationID() string       { return n.data.ConversationID }
func (n *Notification) NotificationCode() string     { return n.data.NotificationCode }
func (n *Notification) Attachment() string           { return n.data.Attachment }
func (n *Notification) Global() bool                 { return n.data.Global }
func (n *Notification) CreatedAt() time.Time         { return n.data.CreatedAt }

// UpdatedAt returns when the notification last changed.
func (n *Notification) UpdatedAt() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.data.UpdatedAt
}

// Expires returns the expiry, if one is set.
func (n *Notification) Expires() (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.data.Expires == nil {
		return time.Time{}, false
	}
	return *n.data.Expires, true
}

// Delivered reports whether the notification has been persisted.
func (n *Notification) Delivered() bool {
	return atomic.LoadInt32(&n.state) == delivered
}

// PendingRecipients returns the recipients awaiting delivery. It is empty
// once the notification is delivered.
func (n *Notification) PendingRecipients() []Participant {
	if atomic.LoadInt32(&n.state) == delivered {
		return nil
	}
	return append([]Participant(nil), n.recipients...)
}

// Record returns a copy of the stored form.
func (n *Notification) Record() *store.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.data.Clone()
}

// Recipients returns the receivers of the delivered notification's receipts,
// including the sender of a message.
func (n *Notification) Recipients(ctx context.Context) ([]Ref, error) {
	receipts, err := n.svc.findReceipts(ctx, store.NotificationIs(n.data.ID))
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, len(receipts))
	for i, r := range receipts {
		refs[i] = r.Receiver
	}
	return refs, nil
}

// Conversation returns the conversation a message belongs to.
func (n *Notification) Conversation(ctx context.Context) (*Conversation, error) {
	if n.data.ConversationID == "" {
		return nil, ErrNotAMessage
	}
	return n.svc.Conversation(ctx, n.data.ConversationID)
}

// --- Expiry ---

// Expired reports whether an expiry is set and has passed.
func (n *Notification) Expired() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.data.ExpiredAt(n.svc.now())
}

// Expire marks the notification as expired one second ago and persists it.
// It does nothing, and reports false, when the notification is already
// expired. An undelivered notification is only changed in memory.
func (n *Notification) Expire(ctx context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.svc.now()
	if n.data.ExpiredAt(now) {
		return false, nil
	}
	t := now.Add(-time.Second)
	if err := n.persistExpiry(ctx, &t); err != nil {
		return false, err
	}
	n.data.Expires = &t
	n.data.UpdatedAt = now
	return true, nil
}

// Unexpire clears the expiry of an expired notification. It reports false
// when the notification is not expired.
func (n *Notification) Unexpire(ctx context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.svc.now()
	if !n.data.ExpiredAt(now) {
		return false, nil
	}
	if err := n.persistExpiry(ctx, nil); err != nil {
		return false, err
	}
	n.data.Expires = nil
	n.data.UpdatedAt = now
	return true, nil
}

func (n *Notification) persistExpiry(ctx context.Context, t *time.Time) error {
	if atomic.LoadInt32(&n.state) != delivered {
		return nil
	}
	if err := n.svc.checkConnected(); err != nil {
		return err
	}
	return mapStoreError(n.svc.store.SetNotificationExpiry(ctx, n.data.ID, t))
}

// --- Per-participant state ---
//
// A nil participant is a no-op: predicates report false and mutators
// report false with a nil error.

// ReceiptFor returns the participant's receipt of this notification.
// It returns nil without error for a nil participant or when none exists.
func (n *Notification) ReceiptFor(ctx context.Context, e Entity) (*Receipt, error) {
	ref, ok := refOf(e)
	if !ok {
		return nil, nil
	}
	receipts, err := n.svc.findReceipts(ctx, store.Join(store.NotificationIs(n.data.ID), store.ReceiverIs(ref)))
	if err != nil || len(receipts) == 0 {
		return nil, err
	}
	return n.svc.wrapReceipt(receipts[0]), nil
}

// IsUnread reports whether the participant has not read it.
func (n *Notification) IsUnread(ctx context.Context, e Entity) (bool, error) {
	r, err := n.ReceiptFor(ctx, e)
	if err != nil || r == nil {
		return false, err
	}
	return !r.IsRead(), nil
}

// IsRead reports whether the participant has read it.
func (n *Notification) IsRead(ctx context.Context, e Entity) (bool, error) {
	r, err := n.ReceiptFor(ctx, e)
	if err != nil || r == nil {
		return false, err
	}
	return r.IsRead(), nil
}

// IsTrashed reports whether the participant moved it to the trash.
func (n *Notification) IsTrashed(ctx context.Context, e Entity) (bool, error) {
	r, err := n.ReceiptFor(ctx, e)
	if err != nil || r == nil {
		return false, err
	}
	return r.Trashed(), nil
}

// IsDeleted reports whether the participant deleted it.
func (n *Notification) IsDeleted(ctx context.Context, e Entity) (bool, error) {
	r, err := n.ReceiptFor(ctx, e)
	if err != nil || r == nil {
		return false, err
	}
	return r.Deleted(), nil
}

// MarkAsRead marks the participant's receipt read. It reports whether one was updated.
func (n *Notification) MarkAsRead(ctx context.Context, e Entity) (bool, error) {
	return n.apply(ctx, e, ActionMarkRead)
}

// MarkAsUnread marks the participant's receipt unread.
func (n *Notification) MarkAsUnread(ctx context.Context, e Entity) (bool, error) {
	return n.apply(ctx, e, ActionMarkUnread)
}

// MoveToTrash trashes the participant's receipt.
func (n *Notification) MoveToTrash(ctx context.Context, e Entity) (bool, error) {
	return n.apply(ctx, e, ActionTrash)
}

// Untrash restores the participant's receipt from the trash.
func (n *Notification) Untrash(ctx context.Context, e Entity) (bool, error) {
	return n.apply(ctx, e, ActionUntrash)
}

// MarkAsDeleted deletes the participant's receipt.
func (n *Notification) MarkAsDeleted(ctx context.Context, e Entity) (bool, error) {
	return n.apply(ctx, e, ActionDelete)
}

func (n *Notification) apply(ctx context.Context, e Entity, action ReceiptAction) (bool, error) {
	ref, ok := refOf(e)
	if !ok {
		return false, nil
	}
	count, err := n.svc.updateScoped(ctx, action, receiptScope{participant: ref, notificationID: n.data.ID})
	return count > 0, err
}

// --- Queries ---

// NotificationQuery selects notifications. Zero-valued fields are ignored.
type NotificationQuery struct {
	// Recipient limits results to notifications the participant holds a
	// receipt for. Unread and NotTrashed further filter those receipts.
	Recipient  Entity
	Unread     bool
	NotTrashed bool

	Kind    store.NotificationKind
	Sender  Entity
	Object  Entity
	Global  *bool
	Expired *bool
}

// Notifications returns notifications matching q ordered by creation time.
func (s *Service) Notifications(ctx context.Context, q NotificationQuery, opts ListOptions) ([]*Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	sq := store.NotificationQuery{
		Kind:    q.Kind,
		Global:  q.Global,
		Expired: q.Expired,
		Now:     s.now(),
	}
	if ref, ok := refOf(q.Sender); ok {
		sq.Sender = ref
	}
	if ref, ok := refOf(q.Object); ok {
		sq.Object = ref
	}

	var filters []store.Filter
	if ref, ok := refOf(q.Recipient); ok {
		filters = append(filters, store.ReceiverIs(ref)...)
	}
	if q.Unread {
		filters = append(filters, store.IsUnread()...)
	}
	if q.NotTrashed {
		filters = append(filters, store.NotTrashed()...)
	}
	if len(filters) > 0 {
		receipts, err := s.store.FindReceipts(ctx, filters, ListOptions{})
		if err != nil {
			return nil, mapStoreError(err)
		}
		sq.IDs = notificationIDs(receipts)
		if len(sq.IDs) == 0 {
			return nil, nil
		}
	}

	found, err := s.store.FindNotifications(ctx, sq, opts)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]*Notification, len(found))
	for i, data := range found {
		out[i] = s.wrapNotification(data)
	}
	return out, nil
}

func notificationIDs(receipts []*store.Receipt) []string {
	seen := make(map[string]bool, len(receipts))
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		if !seen[r.NotificationID] {
			seen[r.NotificationID] = true
			ids = append(ids, r.NotificationID)
		}
	}
	return ids
}

// DeleteNotification deletes a notification or message and its receipts.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	return mapStoreError(s.store.DeleteNotification(ctx, id))
}
