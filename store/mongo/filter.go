package mongo

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rbaliyan/mailboxer/store"
)

// fieldName maps a receipt storage key to its document path.
func fieldName(key string) string {
	switch key {
	case "id":
		return "_id"
	case "receiver_type":
		return "receiver.type"
	case "receiver_id":
		return "receiver.id"
	}
	return key
}

// buildFilter converts receipt filters to a MongoDB filter. Filters on the
// same field are merged into one operator document.
func buildFilter(filters []store.Filter) bson.M {
	result := bson.M{}
	for _, f := range filters {
		var op string
		switch f.Operator() {
		case "eq":
			op = "$eq"
		case "ne":
			op = "$ne"
		case "gt":
			op = "$gt"
		case "gte":
			op = "$gte"
		case "lt":
			op = "$lt"
		case "lte":
			op = "$lte"
		case "in":
			op = "$in"
		case "nin":
			op = "$nin"
		default:
			continue
		}
		name := fieldName(f.Key())
		cond, ok := result[name].(bson.M)
		if !ok {
			cond = bson.M{}
			result[name] = cond
		}
		cond[op] = normalize(f.Value())
	}
	return result
}

// buildNotificationFilter converts a notification query to a MongoDB filter.
func buildNotificationFilter(q store.NotificationQuery) bson.M {
	filter := bson.M{}
	if q.IDs != nil {
		filter["_id"] = bson.M{"$in": q.IDs}
	}
	if q.Kind != "" {
		filter["kind"] = string(q.Kind)
	}
	if q.ConversationID != "" {
		filter["conversation_id"] = q.ConversationID
	}
	if !q.Sender.IsZero() {
		filter["sender.type"] = q.Sender.Type
		filter["sender.id"] = q.Sender.ID
	}
	if !q.Object.IsZero() {
		filter["object.type"] = q.Object.Type
		filter["object.id"] = q.Object.ID
	}
	if q.Global != nil {
		filter["global"] = *q.Global
	}
	if q.Expired != nil {
		now := q.ReferenceTime()
		if *q.Expired {
			filter["expires"] = bson.M{"$lte": now}
		} else {
			// Matches a null or missing expiry as well as a future one.
			filter["$or"] = bson.A{
				bson.M{"expires": nil},
				bson.M{"expires": bson.M{"$gt": now}},
			}
		}
	}
	return filter
}

// findOptions sorts on field with _id as tie-breaker and applies paging.
func findOptions(field string, opts store.ListOptions) *mongoopts.FindOptionsBuilder {
	dir := 1
	if opts.SortOrder == store.SortDesc {
		dir = -1
	}
	fo := mongoopts.Find().SetSort(bson.D{
		bson.E{Key: field, Value: dir},
		bson.E{Key: "_id", Value: dir},
	})
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		fo.SetSkip(int64(opts.Offset))
	}
	return fo
}

// normalize converts typed values to their stored form.
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
