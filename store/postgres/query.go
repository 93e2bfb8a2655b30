package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/rbaliyan/mailboxer/store"
)

const (
	notificationColumns = `id, kind, subject, body, sender_type, sender_id, object_type, object_id,
       conversation_id, notification_code, attachment, global, expires, created_at, updated_at`
	receiptColumns = `id, notification_id, conversation_id, receiver_type, receiver_id,
       is_read, trashed, deleted, mailbox_type, created_at, updated_at`
	conversationColumns = `id, subject, created_at, updated_at`
)

type notificationRow struct {
	ID               string       `db:"id"`
	Kind             string       `db:"kind"`
	Subject          string       `db:"subject"`
	Body             string       `db:"body"`
	SenderType       string       `db:"sender_type"`
	SenderID         string       `db:"sender_id"`
	ObjectType       string       `db:"object_type"`
	ObjectID         string       `db:"object_id"`
	ConversationID   string       `db:"conversation_id"`
	NotificationCode string       `db:"notification_code"`
	Attachment       string       `db:"attachment"`
	Global           bool         `db:"global"`
	Expires          sql.NullTime `db:"expires"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func newNotificationRow(n *store.Notification) notificationRow {
	row := notificationRow{
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
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
	if n.Expires != nil {
		row.Expires = sql.NullTime{Time: *n.Expires, Valid: true}
	}
	return row
}

func (r notificationRow) record() *store.Notification {
	n := &store.Notification{
		ID:               r.ID,
		Kind:             store.NotificationKind(r.Kind),
		Subject:          r.Subject,
		Body:             r.Body,
		Sender:           store.NewRef(r.SenderType, r.SenderID),
		Object:           store.NewRef(r.ObjectType, r.ObjectID),
		ConversationID:   r.ConversationID,
		NotificationCode: r.NotificationCode,
		Attachment:       r.Attachment,
		Global:           r.Global,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.Expires.Valid {
		e := r.Expires.Time.UTC()
		n.Expires = &e
	}
	return n
}

type receiptRow struct {
	ID             string    `db:"id"`
	NotificationID string    `db:"notification_id"`
	ConversationID string    `db:"conversation_id"`
	ReceiverType   string    `db:"receiver_type"`
	ReceiverID     string    `db:"receiver_id"`
	IsRead         bool      `db:"is_read"`
	Trashed        bool      `db:"trashed"`
	Deleted        bool      `db:"deleted"`
	MailboxType    string    `db:"mailbox_type"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func newReceiptRow(r *store.Receipt) receiptRow {
	return receiptRow{
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

func (r receiptRow) record() *store.Receipt {
	return &store.Receipt{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		ConversationID: r.ConversationID,
		Receiver:       store.NewRef(r.ReceiverType, r.ReceiverID),
		IsRead:         r.IsRead,
		Trashed:        r.Trashed,
		Deleted:        r.Deleted,
		MailboxType:    store.MailboxType(r.MailboxType),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type conversationRow struct {
	ID        string    `db:"id"`
	Subject   string    `db:"subject"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r conversationRow) record() *store.Conversation {
	return &store.Conversation{
		ID:        r.ID,
		Subject:   r.Subject,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conditions []string
	args       []any
}

// add appends cond, replacing each "?" with the next placeholder.
func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conditions = append(w.conditions, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conditions) == 0 {
		return "1=1"
	}
	return strings.Join(w.conditions, " AND ")
}

// next returns the placeholder after the collected arguments.
func (w *whereBuilder) next(offset int) string {
	return fmt.Sprintf("$%d", len(w.args)+offset)
}

// buildWhereClause turns receipt filters into a WHERE clause.
// Keys come from store.ReceiptFieldKey, so they are safe to inline.
func buildWhereClause(filters []store.Filter) (string, []any) {
	w := &whereBuilder{}
	for _, f := range filters {
		key := f.Key()
		val := normalize(f.Value())
		switch f.Operator() {
		case "eq":
			w.add(key+" = ?", val)
		case "ne":
			w.add(key+" <> ?", val)
		case "gt":
			w.add(key+" > ?", val)
		case "gte":
			w.add(key+" >= ?", val)
		case "lt":
			w.add(key+" < ?", val)
		case "lte":
			w.add(key+" <= ?", val)
		case "in":
			w.add(key+" = ANY(?)", arrayArg(val))
		case "nin":
			w.add("NOT ("+key+" = ANY(?))", arrayArg(val))
		}
	}
	return w.String(), w.args
}

// buildNotificationWhere turns a notification query into a WHERE clause.
func buildNotificationWhere(q store.NotificationQuery) (string, []any) {
	w := &whereBuilder{}
	if q.IDs != nil {
		w.add("id = ANY(?)", pq.StringArray(q.IDs))
	}
	if q.Kind != "" {
		w.add("kind = ?", string(q.Kind))
	}
	if q.ConversationID != "" {
		w.add("conversation_id = ?", q.ConversationID)
	}
	if !q.Sender.IsZero() {
		w.add("sender_type = ? AND sender_id = ?", q.Sender.Type, q.Sender.ID)
	}
	if !q.Object.IsZero() {
		w.add("object_type = ? AND object_id = ?", q.Object.Type, q.Object.ID)
	}
	if q.Global != nil {
		w.add("global = ?", *q.Global)
	}
	if q.Expired != nil {
		if *q.Expired {
			w.add("(expires IS NOT NULL AND expires <= ?)", q.ReferenceTime())
		} else {
			w.add("(expires IS NULL OR expires > ?)", q.ReferenceTime())
		}
	}
	return w.String(), w.args
}

// orderAndPage returns the ORDER BY and LIMIT/OFFSET tail for column.
// Ties break on id so pages are stable.
func orderAndPage(w *whereBuilder, column string, opts store.ListOptions) (string, []any) {
	dir := "ASC"
	if opts.SortOrder == store.SortDesc {
		dir = "DESC"
	}
	tail := fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)
	var args []any
	if opts.Limit > 0 {
		tail += " LIMIT " + w.next(len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		tail += " OFFSET " + w.next(len(args)+1)
		args = append(args, opts.Offset)
	}
	return tail, args
}

func normalize(v any) any {
	if mt, ok := v.(store.MailboxType); ok {
		return string(mt)
	}
	return v
}

// arrayArg converts an in/nin value to a driver array. String sets become
// text[]; anything else goes through pq.Array.
func arrayArg(v any) any {
	switch vals := v.(type) {
	case []string:
		return pq.StringArray(vals)
	case []any:
		strs := make([]string, 0, len(vals))
		for _, x := range vals {
			s, ok := normalize(x).(string)
			if !ok {
				return pq.Array(vals)
			}
			strs = append(strs, s)
		}
		return pq.StringArray(strs)
	}
	return pq.Array(v)
}
