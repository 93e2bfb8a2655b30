package mailboxer

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rbaliyan/mailboxer/store"
)

// Field names reported in ValidationError.
const (
	fieldSubject             = "subject"
	fieldBody                = "body"
	fieldSender              = "sender"
	fieldConversation        = "conversation"
	fieldConversationSubject = "conversation.subject"
)

// receiptCandidate is the validated shape of a receipt before it is stored.
type receiptCandidate struct {
	NotificationID string `json:"notification" validate:"required"`
	ReceiverType   string `json:"receiver" validate:"required"`
	ReceiverID     string `json:"receiver_id" validate:"required"`
	MailboxType    string `json:"mailbox_type" validate:"omitempty,oneof=inbox sentbox"`
}

// contentValidator checks notifications, conversations and receipt
// candidates. Safe for concurrent use.
type contentValidator struct {
	validate   *validator.Validate
	subjectTag string
	bodyTag    string
}

func newContentValidator(maxSubject, maxBody int) *contentValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if comma := strings.Index(name, ","); comma != -1 {
			name = name[:comma]
		}
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
				return false
			}
		}
		return true
	})
	return &contentValidator{
		validate:   v,
		subjectTag: fmt.Sprintf("required,max=%d,nocontrol", maxSubject),
		bodyTag:    fmt.Sprintf("required,max=%d", maxBody),
	}
}

// validateDelivery validates everything one delivery would persist and
// returns every failure, or nil.
func (cv *contentValidator) validateDelivery(n *store.Notification, conv *store.Conversation, receipts []*store.Receipt) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, cv.field(n.Subject, cv.subjectTag, fieldSubject)...)
	errs = append(errs, cv.field(n.Body, cv.bodyTag, fieldBody)...)

	if n.IsMessage() {
		if n.Sender.IsZero() {
			errs = append(errs, &ValidationError{Field: fieldSender, Tag: "required", Message: "is required"})
		}
		if n.ConversationID == "" {
			errs = append(errs, &ValidationError{Field: fieldConversation, Tag: "required", Message: "is required"})
		}
		if conv != nil {
			errs = append(errs, cv.field(conv.Subject, cv.subjectTag, fieldConversationSubject)...)
		}
	}

	for i, r := range receipts {
		errs = append(errs, cv.receipt(i, r)...)
	}
	return errs.withoutDuplicateSubject()
}

func (cv *contentValidator) field(value, tag, name string) ValidationErrors {
	err := cv.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	return translate(err, func(validator.FieldError) string { return name })
}

func (cv *contentValidator) receipt(i int, r *store.Receipt) ValidationErrors {
	c := receiptCandidate{
		NotificationID: r.NotificationID,
		ReceiverType:   r.Receiver.Type,
		ReceiverID:     r.Receiver.ID,
		MailboxType:    string(r.MailboxType),
	}
	err := cv.validate.Struct(c)
	if err == nil {
		return nil
	}
	errs := translate(err, func(fe validator.FieldError) string {
		field := fe.Field()
		if field == "receiver_id" {
			field = "receiver"
		}
		return fmt.Sprintf("receipts[%d].%s", i, field)
	})
	// A missing receiver fails on both type and id; report it once.
	return dedupeFields(errs)
}

func translate(err error, name func(validator.FieldError) string) ValidationErrors {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "unknown", Tag: "invalid", Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, &ValidationError{
			Field:   name(fe),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "is too long (maximum is " + fe.Param() + " characters)"
	case "oneof":
		return "must be one of " + fe.Param()
	case "nocontrol":
		return "contains control characters"
	}
	return "failed on " + fe.Tag()
}

func dedupeFields(errs ValidationErrors) ValidationErrors {
	seen := make(map[string]bool, len(errs))
	out := errs[:0:0]
	for _, e := range errs {
		if seen[e.Field] {
			continue
		}
		seen[e.Field] = true
		out = append(out, e)
	}
	return out
}
