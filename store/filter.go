package store

import (
	"fmt"
)

// SortOrder represents the sort direction.
type SortOrder int

const (
	// SortAsc sorts in ascending order.
	SortAsc SortOrder = 1
	// SortDesc sorts in descending order.
	SortDesc SortOrder = -1
)

// ListOptions configures listing. A Limit of zero or less returns every match.
// Receipts and notifications sort by created_at, conversations by updated_at.
type ListOptions struct {
	Limit     int
	Offset    int
	SortOrder SortOrder
}

// Filter represents a receipt query filter with a field key, comparison
// operator, and value.
type Filter struct {
	key      string
	value    any
	operator string
}

// Key returns the storage field key.
func (f Filter) Key() string { return f.key }

// Value returns the filter value.
func (f Filter) Value() any { return f.value }

// Operator returns the comparison operator (eq, ne, gt, gte, lt, lte, in, nin).
func (f Filter) Operator() string { return f.operator }

// validOperators is the set of supported filter operators.
var validOperators = map[string]bool{
	"eq":  true,
	"ne":  true,
	"gt":  true,
	"gte": true,
	"lt":  true,
	"lte": true,
	"in":  true,
	"nin": true,
}

// NewFilter creates a filter with the given receipt field, operator, and value.
// Returns ErrFilterInvalid if the key or operator is invalid.
func NewFilter(key, operator string, value any) (Filter, error) {
	storageKey, ok := ReceiptFieldKey(key)
	if !ok {
		return Filter{}, fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, key)
	}
	if !validOperators[operator] {
		return Filter{}, fmt.Errorf("%w: unsupported operator: %s", ErrFilterInvalid, operator)
	}
	return Filter{key: storageKey, value: value, operator: operator}, nil
}

// FilterError represents an error in filter building.
type FilterError struct {
	Key string
	Err error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Key, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// FilterBuilder builds filters for a specific receipt field.
//
//	f, err := store.ReceiptFilter("CreatedAt").LessThan(cutoff)
type FilterBuilder struct {
	key string
	err error
}

func (b *FilterBuilder) build(op string, v any) (Filter, error) {
	if b.err != nil {
		return Filter{}, &FilterError{Key: b.key, Err: b.err}
	}
	return Filter{key: b.key, value: v, operator: op}, nil
}

func (b *FilterBuilder) Equal(v any) (Filter, error)            { return b.build("eq", v) }
func (b *FilterBuilder) NotEqual(v any) (Filter, error)         { return b.build("ne", v) }
func (b *FilterBuilder) GreaterThan(v any) (Filter, error)      { return b.build("gt", v) }
func (b *FilterBuilder) GreaterThanEqual(v any) (Filter, error) { return b.build("gte", v) }
func (b *FilterBuilder) LessThan(v any) (Filter, error)         { return b.build("lt", v) }
func (b *FilterBuilder) LessThanEqual(v any) (Filter, error)    { return b.build("lte", v) }
func (b *FilterBuilder) In(v ...any) (Filter, error)            { return b.build("in", v) }
func (b *FilterBuilder) NotIn(v ...any) (Filter, error)         { return b.build("nin", v) }

// ReceiptFilter returns a filter builder for receipt fields.
func ReceiptFilter(field string) *FilterBuilder {
	key, ok := ReceiptFieldKey(field)
	if !ok {
		return &FilterBuilder{key: field, err: fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, field)}
	}
	return &FilterBuilder{key: key}
}

// ReceiptFieldKey maps field names to storage keys.
func ReceiptFieldKey(field string) (string, bool) {
	switch field {
	case "ID", "id":
		return "id", true
	case "NotificationID", "notification_id":
		return "notification_id", true
	case "ConversationID", "conversation_id":
		return "conversation_id", true
	case "ReceiverType", "receiver_type":
		return "receiver_type", true
	case "ReceiverID", "receiver_id":
		return "receiver_id", true
	case "IsRead", "is_read":
		return "is_read", true
	case "Trashed", "trashed":
		return "trashed", true
	case "Deleted", "deleted":
		return "deleted", true
	case "MailboxType", "mailbox_type":
		return "mailbox_type", true
	case "CreatedAt", "created_at":
		return "created_at", true
	case "UpdatedAt", "updated_at":
		return "updated_at", true
	default:
		return "", false
	}
}

func eq(key string, v any) Filter {
	return Filter{key: key, value: v, operator: "eq"}
}

// Convenience filters. Each returns a slice so views compose with append.

// ReceiptIs selects a single receipt.
func ReceiptIs(id string) []Filter {
	return []Filter{eq("id", id)}
}

// ReceiverIs selects receipts held by the referenced participant.
func ReceiverIs(r Ref) []Filter {
	return []Filter{eq("receiver_type", r.Type), eq("receiver_id", r.ID)}
}

// NotificationIs selects receipts of one notification or message.
func NotificationIs(id string) []Filter {
	return []Filter{eq("notification_id", id)}
}

// ConversationIs selects receipts of every message in a conversation.
func ConversationIs(id string) []Filter {
	return []Filter{eq("conversation_id", id)}
}

// ConversationIn selects receipts belonging to any of the conversations.
func ConversationIn(ids ...string) []Filter {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return []Filter{{key: "conversation_id", value: values, operator: "in"}}
}

// InInbox is mailbox_type=inbox, not trashed, not deleted.
func InInbox() []Filter {
	return []Filter{eq("mailbox_type", string(MailboxInbox)), eq("trashed", false), eq("deleted", false)}
}

// InSentbox is mailbox_type=sentbox, not trashed, not deleted.
func InSentbox() []Filter {
	return []Filter{eq("mailbox_type", string(MailboxSentbox)), eq("trashed", false), eq("deleted", false)}
}

// InTrash is trashed and not deleted.
func InTrash() []Filter {
	return []Filter{eq("trashed", true), eq("deleted", false)}
}

func NotTrashed() []Filter { return []Filter{eq("trashed", false)} }
func IsDeleted() []Filter  { return []Filter{eq("deleted", true)} }
func NotDeleted() []Filter { return []Filter{eq("deleted", false)} }
func IsRead() []Filter     { return []Filter{eq("is_read", true)} }
func IsUnread() []Filter   { return []Filter{eq("is_read", false)} }

// IsMessageReceipt selects receipts that belong to a conversation.
func IsMessageReceipt() []Filter {
	return []Filter{{key: "conversation_id", value: "", operator: "ne"}}
}

// IsNotificationReceipt selects receipts of plain notifications.
func IsNotificationReceipt() []Filter {
	return []Filter{eq("conversation_id", "")}
}

// Join concatenates filter groups.
func Join(groups ...[]Filter) []Filter {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]Filter, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// ValidateFilters checks that every filter has a known key and operator.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if _, ok := ReceiptFieldKey(f.key); !ok {
			return fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, f.key)
		}
		if !validOperators[f.operator] {
			return fmt.Errorf("%w: unsupported operator: %s", ErrFilterInvalid, f.operator)
		}
	}
	return nil
}
