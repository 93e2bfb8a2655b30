package mailboxer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/mailboxer/store"
)

// Sentinel errors for the mailboxer package.
// Use errors.Is() to check for these errors.
//
// Errors that correspond to store-level errors wrap them, so
// errors.Is(err, mailboxer.ErrNotFound) matches both.
var (
	// ErrNotFound is returned when a notification, receipt or conversation
	// cannot be found.
	ErrNotFound = fmt.Errorf("mailboxer: %w", store.ErrNotFound)

	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("mailboxer: validation failed")

	// ErrAlreadyDelivered is returned when Deliver is called again on a
	// notification handle whose recipients were already delivered.
	ErrAlreadyDelivered = errors.New("mailboxer: already delivered")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("mailboxer: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = fmt.Errorf("mailboxer: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = fmt.Errorf("mailboxer: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = fmt.Errorf("mailboxer: %w", store.ErrInvalidID)

	// ErrFilterInvalid is returned when a receipt filter is invalid.
	ErrFilterInvalid = fmt.Errorf("mailboxer: %w", store.ErrFilterInvalid)

	// ErrParticipantNotFound is returned by resolvers for unknown references.
	ErrParticipantNotFound = errors.New("mailboxer: participant not found")

	// ErrNotAMessage is returned when a conversation operation is given a
	// receipt or notification outside any conversation.
	ErrNotAMessage = errors.New("mailboxer: not a conversation message")
)

// mapStoreError maps store errors onto the package sentinels so callers only
// need to check mailboxer errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return withContext(ErrNotFound, store.ErrNotFound, err)
	case errors.Is(err, store.ErrNotConnected):
		return ErrNotConnected
	case errors.Is(err, store.ErrInvalidID):
		return ErrInvalidID
	case errors.Is(err, store.ErrFilterInvalid):
		return withContext(ErrFilterInvalid, store.ErrFilterInvalid, err)
	}
	return err
}

// withContext wraps sentinel with whatever err says beyond base, so the
// store sentinel's text appears once.
func withContext(sentinel, base, err error) error {
	if err == base {
		return sentinel
	}
	detail := strings.TrimSuffix(err.Error(), ": "+base.Error())
	if detail == "" || detail == base.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

// ValidationError describes one field that failed validation.
type ValidationError struct {
	Field   string // e.g. "subject", "conversation.subject", "receipts[2].receiver"
	Tag     string // validation rule that failed, e.g. "required", "max"
	Message string // human-readable message
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mailboxer: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ValidationErrors is every validation failure of one delivery.
// It matches ErrValidation with errors.Is.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return fmt.Sprintf("mailboxer: %d validation errors: %s", len(v), strings.Join(parts, "; "))
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, e := range v {
		errs[i] = e
	}
	return errs
}

// Fields returns the failing field names in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, len(v))
	for i, e := range v {
		fields[i] = e.Field
	}
	return fields
}

// Has reports whether field failed validation.
func (v ValidationErrors) Has(field string) bool {
	for _, e := range v {
		if e.Field == field {
			return true
		}
	}
	return false
}

// withoutDuplicateSubject drops conversation subject errors when the
// message subject already failed, so one cause surfaces once.
func (v ValidationErrors) withoutDuplicateSubject() ValidationErrors {
	if !v.Has(fieldSubject) || !v.Has(fieldConversationSubject) {
		return v
	}
	out := v[:0:0]
	for _, e := range v {
		if e.Field != fieldConversationSubject {
			out = append(out, e)
		}
	}
	return out
}

// IsValidationError reports whether err is a validation failure and
// returns its details.
func IsValidationError(err error) (ValidationErrors, bool) {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// DispatchError is handed to the dispatch failure handler when the
// Dispatcher fails. The delivery itself has succeeded.
type DispatchError struct {
	NotificationID string
	Recipients     int
	Err            error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("mailboxer: dispatch of %s to %d recipients failed: %v", e.NotificationID, e.Recipients, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// EventPublishError is returned when event publishing fails but the operation
// succeeded. It is only returned when WithEventErrorsFatal(true) is set.
type EventPublishError struct {
	Event    string // event name
	EntityID string // notification, conversation or receipt the event was for
	Err      error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("mailboxer: event %s publish failed for %s: %v", e.Event, e.EntityID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and returns details.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
