package payment

import (
	"context"
	"time"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

// Status mirrors the processor's payment intent status. StatusFailed is
// reported locally when the processor declines a confirmation.
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
	StatusFailed                Status = "failed"
)

// Gateway talks to the payment processor. Implementations never retry on
// their own and never modify a session after creating it.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ConfirmSession(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	RetrieveOrderDetails(ctx context.Context, id string) (*OrderDetails, error)
}

// SessionRequest describes a purchase. Amount is in minor units and already
// includes tax.
type SessionRequest struct {
	Items          []domain.OrderItem
	Customer       domain.CustomerInfo
	Amount         int64
	Currency       string
	IdempotencyKey string
	// Metadata is attached to the session in addition to customer and item data.
	Metadata map[string]string
}

type Session struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       Status `json:"status"`
}

// CheckoutSessionRequest describes a purchase paid on the processor's hosted
// page. Line prices are unit prices in minor units; Tax becomes its own line.
// SuccessURL may contain {CHECKOUT_SESSION_ID}, which the processor fills in.
type CheckoutSessionRequest struct {
	Lines          []domain.CartLine
	Tax            int64
	Customer       domain.CustomerInfo
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

type ConfirmRequest struct {
	SessionID      string
	PaymentMethod  string
	Customer       domain.CustomerInfo
	IdempotencyKey string
}

// Confirmation is the processor's answer to a confirmation attempt. A declined
// card is a Confirmation with StatusFailed, not an error.
type Confirmation struct {
	PaymentID   string `json:"paymentId"`
	Status      Status `json:"status"`
	DeclineCode string `json:"declineCode,omitempty"`
	Message     string `json:"message,omitempty"`
}

// OrderDetails is the confirmation view of a completed payment. Total is in
// major units for display; Amount is in minor units.
type OrderDetails struct {
	OrderID      string             `json:"orderId"`
	PaymentID    string             `json:"paymentIntentId"`
	Total        float64            `json:"total"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	Status       Status             `json:"status"`
	CustomerName string             `json:"customerName"`
	Email        string             `json:"email"`
	Items        []domain.OrderItem `json:"items"`
	CreatedAt    time.Time          `json:"createdAt"`
}
