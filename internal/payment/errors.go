package payment

import (
	"errors"
	"fmt"
)

var ErrMissingCredentials = errors.New("payment processor credentials are not configured")

const (
	KindUnreachable   = "unreachable"
	KindRejected      = "rejected"
	KindMisconfigured = "misconfigured"
)

// Processor error codes the checkout reacts to.
const (
	CodeResourceMissing = "resource_missing"
	CodeUnexpectedState = "payment_intent_unexpected_state"
)

// GatewayError is returned when the processor could not be reached, rejected
// a request, or the gateway is not configured to call it.
type GatewayError struct {
	Op         string
	Kind       string
	StatusCode int
	Type       string
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("payment %s %s (%s): %s", e.Op, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("payment %s %s: %s", e.Op, e.Kind, msg)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// SessionGone reports whether the processor no longer knows the session, so a
// new one must be created.
func (e *GatewayError) SessionGone() bool {
	return e.Code == CodeResourceMissing
}

// UnexpectedState reports a confirmation refused because of the session's
// current status, e.g. an earlier attempt already went through.
func (e *GatewayError) UnexpectedState() bool {
	return e.Code == CodeUnexpectedState
}

func (e *GatewayError) CardError() bool {
	return e.Type == "card_error"
}

// NotFoundError is returned when an id does not resolve to a payment.
type NotFoundError struct {
	ID     string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment %q not found: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("payment %q not found", e.ID)
}

// DecodeError reports an item manifest that could not be parsed. Callers log
// it and continue with an empty item list.
type DecodeError struct {
	PaymentID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode item manifest for %s: %v", e.PaymentID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
