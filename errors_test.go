package mailboxer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rbaliyan/mailboxer/store"
)

func TestSentinelErrorsWrapStore(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		storeErr error
	}{
		{"not found", ErrNotFound, store.ErrNotFound},
		{"not connected", ErrNotConnected, store.ErrNotConnected},
		{"already connected", ErrAlreadyConnected, store.ErrAlreadyConnected},
		{"invalid id", ErrInvalidID, store.ErrInvalidID},
		{"filter invalid", ErrFilterInvalid, store.ErrFilterInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.storeErr) {
				t.Errorf("%v should match %v", tt.err, tt.storeErr)
			}
		})
	}
}

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not found", fmt.Errorf("receipt r1: %w", store.ErrNotFound), ErrNotFound},
		{"not connected", store.ErrNotConnected, ErrNotConnected},
		{"invalid id", store.ErrInvalidID, ErrInvalidID},
		{"filter", store.ErrFilterInvalid, ErrFilterInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapStoreError(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("store sentinel text appears once", func(t *testing.T) {
		tests := []struct {
			in   error
			want string
		}{
			{store.ErrNotFound, "mailboxer: store: not found"},
			{fmt.Errorf("receipt r1: %w", store.ErrNotFound), "mailboxer: store: not found: receipt r1"},
			{fmt.Errorf("bad key: %w", store.ErrFilterInvalid), ErrFilterInvalid.Error() + ": bad key"},
		}
		for _, tt := range tests {
			if got := mapStoreError(tt.in).Error(); got != tt.want {
				t.Errorf("mapStoreError(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		if got := mapStoreError(boom); got != boom {
			t.Errorf("expected the same error, got %v", got)
		}
	})
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		{Field: fieldSubject, Tag: "required", Message: "is required"},
		{Field: fieldConversationSubject, Tag: "required", Message: "is required"},
		{Field: "receipts[0].receiver", Tag: "required", Message: "is required"},
	}

	if !errors.Is(errs, ErrValidation) {
		t.Error("ValidationErrors should match ErrValidation")
	}
	if !errs.Has("receipts[0].receiver") || errs.Has(fieldBody) {
		t.Error("Has reported the wrong fields")
	}
	if msg := errs.Error(); !strings.Contains(msg, "3 validation errors") {
		t.Errorf("unexpected message %q", msg)
	}

	t.Run("single error keeps its own message", func(t *testing.T) {
		one := ValidationErrors{errs[0]}
		if one.Error() != errs[0].Error() {
			t.Errorf("got %q", one.Error())
		}
	})

	t.Run("duplicate subject is dropped", func(t *testing.T) {
		got := errs.withoutDuplicateSubject().Fields()
		want := []string{fieldSubject, "receipts[0].receiver"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("fields = %v, want %v", got, want)
		}
		if len(errs) != 3 {
			t.Error("original slice must not be modified")
		}
	})

	t.Run("conversation subject alone is kept", func(t *testing.T) {
		only := ValidationErrors{errs[1]}
		if got := only.withoutDuplicateSubject(); len(got) != 1 {
			t.Errorf("expected 1 error, got %d", len(got))
		}
	})

	t.Run("extracted through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("deliver: %w", errs)
		ve, ok := IsValidationError(wrapped)
		if !ok || len(ve) != 3 {
			t.Errorf("expected 3 validation errors, got %v %v", ve, ok)
		}
		if _, ok := IsValidationError(errors.New("other")); ok {
			t.Error("plain error is not a validation error")
		}
	})
}

func TestDispatchError(t *testing.T) {
	cause := errors.New("smtp down")
	err := &DispatchError{NotificationID: "n1", Recipients: 2, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("DispatchError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "n1") || !strings.Contains(err.Error(), "2 recipients") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("redis unavailable")
	err := fmt.Errorf("deliver: %w", &EventPublishError{Event: "mailboxer.message.delivered", EntityID: "n1", Err: cause})

	epe, ok := IsEventPublishError(err)
	if !ok {
		t.Fatal("expected EventPublishError")
	}
	if epe.EntityID != "n1" || !errors.Is(err, cause) {
		t.Errorf("unexpected details %+v", epe)
	}
	if _, ok := IsEventPublishError(cause); ok {
		t.Error("cause alone is not an EventPublishError")
	}
}
