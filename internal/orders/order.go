package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

type Status string

const (
	// StatusPending orders have a payment session but no processor confirmation yet.
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

const EventOrderConfirmed = "order.confirmed"

type Order struct {
	ID            uuid.UUID
	PaymentID     string
	SessionID     string
	Email         string
	Items         []domain.OrderItem
	Total         int64
	Currency      string
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// confirmedPayload is the order.confirmed message body.
type confirmedPayload struct {
	OrderID     string    `json:"order_id"`
	PaymentID   string    `json:"payment_id"`
	SessionID   string    `json:"session_id"`
	Email       string    `json:"email"`
	Total       int64     `json:"total"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}
