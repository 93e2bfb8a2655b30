package mailboxer

import (
	"context"

	"github.com/rbaliyan/mailboxer/store"
)

// Stats summarizes a participant's receipts. Deleted receipts are excluded.
type Stats struct {
	Receipts            int64 `json:"receipts"`
	Unread              int64 `json:"unread"`
	UnreadMessages      int64 `json:"unread_messages"`
	UnreadNotifications int64 `json:"unread_notifications"`
	Inbox               int64 `json:"inbox"`
	Sentbox             int64 `json:"sentbox"`
	Trash               int64 `json:"trash"`
}

// Stats counts the participant's receipts by state. Counts are computed on
// every call. A nil participant yields zero stats.
func (s *Service) Stats(ctx context.Context, participant Entity) (*Stats, error) {
	st := &Stats{}
	ref, ok := refOf(participant)
	if !ok {
		return st, nil
	}
	base := store.Join(store.ReceiverIs(ref), store.NotDeleted())
	unread := store.Join(store.IsUnread(), store.NotTrashed())

	counts := []struct {
		dst     *int64
		filters []store.Filter
	}{
		{&st.Receipts, base},
		{&st.Unread, store.Join(base, unread)},
		{&st.UnreadMessages, store.Join(base, unread, store.IsMessageReceipt())},
		{&st.UnreadNotifications, store.Join(base, unread, store.IsNotificationReceipt())},
		{&st.Inbox, store.Join(store.ReceiverIs(ref), store.InInbox())},
		{&st.Sentbox, store.Join(store.ReceiverIs(ref), store.InSentbox())},
		{&st.Trash, store.Join(store.ReceiverIs(ref), store.InTrash())},
	}
	for _, c := range counts {
		n, err := s.CountReceipts(ctx, c.filters)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return st, nil
}
