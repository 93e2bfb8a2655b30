package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/rbaliyan/mailboxer/store"
)

func matchesFilters(r *store.Receipt, filters []store.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(r, f) {
			return false
		}
	}
	return true
}

func matchesFilter(r *store.Receipt, f store.Filter) bool {
	var fieldValue any
	switch f.Key() {
	case "id":
		fieldValue = r.ID
	case "notification_id":
		fieldValue = r.NotificationID
	case "conversation_id":
		fieldValue = r.ConversationID
	case "receiver_type":
		fieldValue = r.Receiver.Type
	case "receiver_id":
		fieldValue = r.Receiver.ID
	case "is_read":
		fieldValue = r.IsRead
	case "trashed":
		fieldValue = r.Trashed
	case "deleted":
		fieldValue = r.Deleted
	case "mailbox_type":
		fieldValue = string(r.MailboxType)
	case "created_at":
		fieldValue = r.CreatedAt
	case "updated_at":
		fieldValue = r.UpdatedAt
	default:
		return false
	}

	value := normalize(f.Value())
	switch f.Operator() {
	case "eq":
		return equalValues(fieldValue, value)
	case "ne":
		return !equalValues(fieldValue, value)
	case "lt":
		return compareValues(fieldValue, value) < 0
	case "lte":
		return compareValues(fieldValue, value) <= 0
	case "gt":
		return compareValues(fieldValue, value) > 0
	case "gte":
		return compareValues(fieldValue, value) >= 0
	case "in":
		return valueInSet(fieldValue, value)
	case "nin":
		return !valueInSet(fieldValue, value)
	}
	return false
}

// normalize converts typed values callers may pass (MailboxType) to the
// representation stored in the record.
func normalize(v any) any {
	if mt, ok := v.(store.MailboxType); ok {
		return string(mt)
	}
	return v
}

func equalValues(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

func valueInSet(fieldValue any, set any) bool {
	switch s := set.(type) {
	case []any:
		for _, v := range s {
			if equalValues(fieldValue, normalize(v)) {
				return true
			}
		}
	case []string:
		for _, v := range s {
			if fieldValue == v {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}

// sortByTime sorts by the key's time, then by ID for a stable order.
// Anything but SortDesc sorts ascending.
func sortByTime[T any](items []T, key func(T) (time.Time, string), order store.SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			if order == store.SortDesc {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		if order == store.SortDesc {
			return idi > idj
		}
		return idi < idj
	})
}

func page[T any](items []T, opts store.ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
