package store

// Ref is a polymorphic reference to a participant or any other entity,
// identified by a type tag and an id.
type Ref struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id" bson:"id"`
}

// NewRef returns a reference for the given type and id.
func NewRef(typ, id string) Ref {
	return Ref{Type: typ, ID: id}
}

// IsZero reports whether the reference is missing either part.
func (r Ref) IsZero() bool {
	return r.Type == "" || r.ID == ""
}

// String returns "type:id".
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Type + ":" + r.ID
}

// MailboxRef returns r, so a bare reference can stand in for a participant
// in per-participant operations.
func (r Ref) MailboxRef() Ref {
	return r
}
