package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrValidation                 = errors.New("validation failed")
	ErrInvalidTransition          = errors.New("invalid transition")
	ErrForbidden                  = errors.New("forbidden")
	ErrNotFound                   = errors.New("not found")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
)

// FieldError names one bad input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every missing or invalid field of a request. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a bad field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e as an error when at least one field was recorded.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// InvalidTransitionError reports an action attempted from a status that does not allow it.
// Retrying without a status change fails identically.
type InvalidTransitionError struct {
	From     Status
	Action   Action
	Required Status
}

func (e *InvalidTransitionError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("appeal cannot %s (current: %s)", e.Action, e.From)
	}
	return fmt.Sprintf("appeal must be in %s state to %s (current: %s)", e.Required, e.Action, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Forbidden wraps ErrForbidden with the reason the actor was refused.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// NotificationDeliveryFailed is a warning: the appeal transition is committed and stands,
// only the donor notification could not be handed off.
type NotificationDeliveryFailed struct {
	AppealID uuid.UUID
	Trigger  Trigger
	Err      error
}

func (e *NotificationDeliveryFailed) Error() string {
	verb := "approved"
	if e.Trigger == TriggerRejected {
		verb = "rejected"
	}
	return fmt.Sprintf("appeal %s; donor notification failed to send: %v", verb, e.Err)
}

func (e *NotificationDeliveryFailed) Unwrap() error {
	return e.Err
}

func (e *NotificationDeliveryFailed) Is(target error) bool {
	return target == ErrNotificationDeliveryFailed
}
