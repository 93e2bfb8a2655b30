package gormdb

import (
	"gorm.io/gorm"

	"github.com/rbaliyan/mailboxer/store"
)

// applyFilters adds receipt filters as WHERE conditions. Keys come from
// store.ReceiptFieldKey and are column names.
func applyFilters(tx *gorm.DB, filters []store.Filter) *gorm.DB {
	for _, f := range filters {
		key := f.Key()
		val := normalize(f.Value())
		switch f.Operator() {
		case "eq":
			tx = tx.Where(key+" = ?", val)
		case "ne":
			tx = tx.Where(key+" <> ?", val)
		case "gt":
			tx = tx.Where(key+" > ?", val)
		case "gte":
			tx = tx.Where(key+" >= ?", val)
		case "lt":
			tx = tx.Where(key+" < ?", val)
		case "lte":
			tx = tx.Where(key+" <= ?", val)
		case "in":
			if isEmptySet(val) {
				tx = tx.Where("1 = 0")
			} else {
				tx = tx.Where(key+" IN ?", val)
			}
		case "nin":
			if !isEmptySet(val) {
				tx = tx.Where(key+" NOT IN ?", val)
			}
		}
	}
	return tx
}

// applyNotificationQuery adds the query's non-zero fields as conditions.
func applyNotificationQuery(tx *gorm.DB, q store.NotificationQuery) *gorm.DB {
	if q.IDs != nil {
		tx = tx.Where("id IN ?", q.IDs)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", string(q.Kind))
	}
	if q.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", q.ConversationID)
	}
	if !q.Sender.IsZero() {
		tx = tx.Where("(sender_type = ? AND sender_id = ?)", q.Sender.Type, q.Sender.ID)
	}
	if !q.Object.IsZero() {
		tx = tx.Where("(object_type = ? AND object_id = ?)", q.Object.Type, q.Object.ID)
	}
	if q.Global != nil {
		tx = tx.Where("global = ?", *q.Global)
	}
	if q.Expired != nil {
		now := q.ReferenceTime()
		if *q.Expired {
			tx = tx.Where("(expires IS NOT NULL AND expires <= ?)", now)
		} else {
			tx = tx.Where("(expires IS NULL OR expires > ?)", now)
		}
	}
	return tx
}

// page orders by column, breaking ties on id, and applies limit and offset.
func page(tx *gorm.DB, column string, opts store.ListOptions) *gorm.DB {
	dir := " ASC"
	if opts.SortOrder == store.SortDesc {
		dir = " DESC"
	}
	tx = tx.Order(column + dir).Order("id" + dir)
	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		tx = tx.Offset(opts.Offset)
	}
	return tx
}

func normalize(v any) any {
	switch val := v.(type) {
	case store.MailboxType:
		return string(val)
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalize(x)
		}
		return out
	}
	return v
}

func isEmptySet(v any) bool {
	switch vals := v.(type) {
	case []any:
		return len(vals) == 0
	case []string:
		return len(vals) == 0
	}
	return false
}
