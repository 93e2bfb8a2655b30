// Package resolver provides ParticipantResolver implementations.
package resolver

import (
	"context"
	"fmt"

	"github.com/rbaliyan/mailboxer"
)

// Static is a map-based ParticipantResolver for testing and simple deployments.
// Safe for concurrent use (read-only after creation).
type Static struct {
	participants map[mailboxer.Ref]mailboxer.Participant
}

var _ mailboxer.ParticipantResolver = (*Static)(nil)

// NewStatic creates a Static resolver keyed by each participant's reference.
// Nil participants and participants with incomplete references are skipped.
func NewStatic(participants ...mailboxer.Participant) *Static {
	m := make(map[mailboxer.Ref]mailboxer.Participant, len(participants))
	for _, p := range participants {
		if p == nil {
			continue
		}
		if ref := p.MailboxRef(); !ref.IsZero() {
			m[ref] = p
		}
	}
	return &Static{participants: m}
}

// Resolve returns the participant for ref.
func (s *Static) Resolve(_ context.Context, ref mailboxer.Ref) (mailboxer.Participant, error) {
	p, ok := s.participants[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mailboxer.ErrParticipantNotFound, ref)
	}
	return p, nil
}

// ResolveBatch returns participants in input order. Unknown refs have nil entries.
func (s *Static) ResolveBatch(_ context.Context, refs []mailboxer.Ref) ([]mailboxer.Participant, error) {
	result := make([]mailboxer.Participant, len(refs))
	for i, ref := range refs {
		result[i] = s.participants[ref]
	}
	return result, nil
}
