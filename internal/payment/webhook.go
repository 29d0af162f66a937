package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader          = "Stripe-Signature"
	DefaultWebhookTolerance  = 5 * time.Minute
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventPaymentCanceled     = "payment_intent.canceled"
	EventPaymentProcessing   = "payment_intent.processing"
	signatureSchemeV1        = "v1"
	signatureTimestampPrefix = "t"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks a "t=<unix>,v1=<hex>" header against payload signed
// with secret. Signatures older or newer than tolerance are rejected.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrMissingCredentials
	}

	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: header is missing required fields", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp: %v", ErrInvalidSignature, err)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := sign(timestamp, payload, secret)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrInvalidSignature)
}

// SignatureHeaderValue builds a header for payload, as the processor would.
func SignatureHeaderValue(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return signatureTimestampPrefix + "=" + ts + "," + signatureSchemeV1 + "=" + hex.EncodeToString(sign(ts, payload, secret))
}

func parseSignatureHeader(header string) (string, []string) {
	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(strings.TrimSpace(header), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case signatureTimestampPrefix:
			timestamp = value
		case signatureSchemeV1:
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

func sign(timestamp string, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Event is the part of a processor webhook the storefront acts on.
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	PaymentID   string            `json:"paymentId"`
	Status      Status            `json:"status"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	FailureCode string            `json:"failureCode,omitempty"`
}

func ParseEvent(payload []byte) (*Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object stripePaymentIntent `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse webhook event: %w", err)
	}
	if raw.Type == "" {
		return nil, errors.New("parse webhook event: missing type")
	}

	obj := raw.Data.Object
	ev := &Event{
		ID:        raw.ID,
		Type:      raw.Type,
		PaymentID: obj.ID,
		Status:    obj.Status,
		Amount:    obj.Amount,
		Currency:  obj.Currency,
		Metadata:  obj.Metadata,
	}
	if obj.LastPaymentError != nil {
		ev.FailureCode = firstNonEmpty(obj.LastPaymentError.DeclineCode, obj.LastPaymentError.Code)
	}
	return ev, nil
}

// EventHandler reacts to a verified payment event.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, ev Event) error
}

// Handlers fans an event out to every handler, in order.
type Handlers []EventHandler

func (hs Handlers) HandlePaymentEvent(ctx context.Context, ev Event) error {
	var errs []error
	for _, h := range hs {
		if err := h.HandlePaymentEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
