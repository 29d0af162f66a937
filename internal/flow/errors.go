package flow

import (
	"errors"
	"fmt"
)

var (
	ErrFlowBusy                = errors.New("checkout already in progress")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrNotReady                = errors.New("payment form is not ready")
	ErrPaymentFieldsIncomplete = errors.New("payment details are incomplete")
	ErrSessionStale            = errors.New("cart changed since the payment session was created")
	ErrAlreadyCompleted        = errors.New("checkout already completed")
)

// ValidationError maps JSON field names to messages. First is the field the
// form should focus.
type ValidationError struct {
	Fields map[string]string
	First  string
}

func (e *ValidationError) Error() string {
	if e.First == "" {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.First, e.Fields[e.First])
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
	if e.First == "" {
		e.First = field
	}
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}
