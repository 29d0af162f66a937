package flow

import (
	"time"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

type State string

const (
	StateIdle                   State = "IDLE"
	StateValidating             State = "VALIDATING"
	StateAwaitingPaymentSession State = "AWAITING_PAYMENT_SESSION"
	StatePaymentFormReady       State = "PAYMENT_FORM_READY"
	StateSubmitting             State = "SUBMITTING"
	StateSucceeded              State = "SUCCEEDED"
	StateFailed                 State = "FAILED"
)

// String representation (for logging)
func (s State) String() string {
	return string(s)
}

type MessageKind string

const (
	MessageError MessageKind = "error"
	MessageInfo  MessageKind = "info"
)

// SessionToken is the payment session issued for one cart fingerprint. Items
// are the lines the session was priced from.
type SessionToken struct {
	ID           string             `json:"id"`
	ClientSecret string             `json:"clientSecret"`
	Fingerprint  string             `json:"fingerprint"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	Items        []domain.OrderItem `json:"items,omitempty"`
}

// Flow is the persisted checkout state of one shopper.
type Flow struct {
	State                 State                `json:"state"`
	CustomerInfo          *domain.CustomerInfo `json:"customerInfo,omitempty"`
	Validated             bool                 `json:"validated"`
	FieldErrors           map[string]string    `json:"fieldErrors,omitempty"`
	FirstInvalidField     string               `json:"firstInvalidField,omitempty"`
	PaymentSession        *SessionToken        `json:"paymentSession,omitempty"`
	PaymentFieldsComplete bool                 `json:"paymentFieldsComplete"`
	Message               string               `json:"message,omitempty"`
	MessageKind           MessageKind          `json:"messageKind,omitempty"`
	OrderID               string               `json:"orderId,omitempty"`
	// SessionGeneration and ConfirmAttempts feed processor idempotency keys so a
	// discarded session or a retried confirmation is never answered from cache.
	SessionGeneration int       `json:"sessionGeneration"`
	ConfirmAttempts   int       `json:"confirmAttempts"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (f *Flow) setMessage(kind MessageKind, msg string) {
	f.MessageKind = kind
	f.Message = msg
}

func (f *Flow) clearMessage() {
	f.MessageKind = ""
	f.Message = ""
}

func (f *Flow) discardSession() {
	if f.PaymentSession != nil {
		f.SessionGeneration++
	}
	f.PaymentSession = nil
	f.PaymentFieldsComplete = false
	f.ConfirmAttempts = 0
}

// Result is the outcome of a submission.
type Result struct {
	Flow        *Flow                    `json:"flow"`
	Snapshot    *domain.CheckoutSnapshot `json:"snapshot,omitempty"`
	DeclineCode string                   `json:"declineCode,omitempty"`
}
