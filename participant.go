package mailboxer

import (
	"context"
	"reflect"

	"github.com/rbaliyan/mailboxer/store"
)

// Ref identifies a participant (or any other entity) by type and id.
type Ref = store.Ref

// NewRef returns a reference for the given type and id.
func NewRef(typ, id string) Ref {
	return store.NewRef(typ, id)
}

// Entity is anything with a stable mailbox identity. Ref implements it,
// so per-participant operations accept a bare reference.
type Entity interface {
	MailboxRef() Ref
}

// Participant can send and receive notifications.
//
// MailboxAddress returns where the Dispatcher should deliver n for this
// participant, or false when the participant cannot be reached out of band.
// A participant without an address still receives a receipt.
type Participant interface {
	Entity
	MailboxAddress(ctx context.Context, n *Notification) (string, bool)
}

// ParticipantResolver turns stored references back into participants.
// Implementations should be safe for concurrent use.
type ParticipantResolver interface {
	// Resolve returns the participant for ref, or ErrParticipantNotFound.
	Resolve(ctx context.Context, ref Ref) (Participant, error)
	// ResolveBatch returns participants in input order. Unknown refs have
	// nil entries.
	ResolveBatch(ctx context.Context, refs []Ref) ([]Participant, error)
}

// Contact is a simple Participant with an optional email address.
type Contact struct {
	Ref   Ref
	Name  string
	Email string
}

// MailboxRef returns the contact's reference.
func (c *Contact) MailboxRef() Ref {
	return c.Ref
}

// MailboxAddress returns the contact's email, if any.
func (c *Contact) MailboxAddress(context.Context, *Notification) (string, bool) {
	return c.Email, c.Email != ""
}

// unreachable is a participant known only by reference.
type unreachable struct{ ref Ref }

// Unreachable wraps a reference as a Participant with no address.
func Unreachable(ref Ref) Participant {
	return unreachable{ref: ref}
}

func (u unreachable) MailboxRef() Ref { return u.ref }

func (u unreachable) MailboxAddress(context.Context, *Notification) (string, bool) {
	return "", false
}

// refOf returns e's reference, or false when e is nil (including a typed
// nil pointer) or carries an incomplete reference.
func refOf(e Entity) (Ref, bool) {
	if e == nil {
		return Ref{}, false
	}
	if v := reflect.ValueOf(e); v.Kind() == reflect.Pointer && v.IsNil() {
		return Ref{}, false
	}
	ref := e.MailboxRef()
	if ref.IsZero() {
		return Ref{}, false
	}
	return ref, true
}

// resolveAll resolves refs through the configured resolver. Refs the resolver
// does not know, and every ref when no resolver is set, become Unreachable.
func (s *Service) resolveAll(ctx context.Context, refs []Ref) ([]Participant, error) {
	out := make([]Participant, len(refs))
	if s.opts.resolver == nil {
		for i, r := range refs {
			out[i] = Unreachable(r)
		}
		return out, nil
	}
	resolved, err := s.opts.resolver.ResolveBatch(ctx, refs)
	if err != nil {
		return nil, err
	}
	for i, r := range refs {
		if i < len(resolved) && resolved[i] != nil {
			out[i] = resolved[i]
		} else {
			out[i] = Unreachable(r)
		}
	}
	return out, nil
}
