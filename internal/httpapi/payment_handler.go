package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/flow"
	"github.com/syedhariswaseem/lazr/internal/payment"
)

type PaymentHandler struct {
	gateway  payment.Gateway
	carts    *cart.Service
	currency string
}

func NewPaymentHandler(gateway payment.Gateway, carts *cart.Service, currency string) *PaymentHandler {
	return &PaymentHandler{gateway: gateway, carts: carts, currency: currency}
}

// CreateSessionRequestDTO amounts are in cents, tax included.
type CreateSessionRequestDTO struct {
	Items        []domain.OrderItem  `json:"items"`
	CustomerInfo domain.CustomerInfo `json:"customerInfo"`
	Amount       int64               `json:"amount"`
}

type CreateSessionResponseDTO struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// CheckoutSessionRequestDTO may be empty; the hosted page collects whatever
// customer details are missing.
type CheckoutSessionRequestDTO struct {
	CustomerInfo domain.CustomerInfo `json:"customerInfo"`
}

type OrderDetailsRequestDTO struct {
	PaymentIntentID string `json:"paymentIntentId"`
	SessionID       string `json:"sessionId"`
}

func (h *PaymentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Amount <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_items", "at least one item is required")
		return
	}

	sess, err := h.gateway.CreateSession(r.Context(), payment.SessionRequest{
		Items:          req.Items,
		Customer:       req.CustomerInfo.Normalize(),
		Amount:         req.Amount,
		Currency:       h.currency,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Metadata:       map[string]string{"session_id": sessionID(r)},
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, CreateSessionResponseDTO{ID: sess.ID, ClientSecret: sess.ClientSecret})
}

// CreateCheckoutSession starts a processor-hosted checkout for the shopper's
// cart and returns the page to redirect to.
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CheckoutSessionRequestDTO
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sid := sessionID(r)
	c, err := h.carts.Open(r.Context(), sid)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if c.IsEmpty() {
		respondError(w, r, http.StatusBadRequest, "empty_cart", "Your cart is empty.")
		return
	}

	lines := c.Lines()
	totals := c.Totals()
	origin := requestOrigin(r)
	cs, err := h.gateway.CreateCheckoutSession(r.Context(), payment.CheckoutSessionRequest{
		Lines:          lines,
		Tax:            totals.Tax,
		Customer:       req.CustomerInfo.Normalize(),
		Currency:       h.currency,
		SuccessURL:     origin + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      origin + "/cart",
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Metadata: map[string]string{
			"session_id":                 sid,
			flow.MetadataCartFingerprint: flow.Fingerprint(lines, totals.Total, h.currency),
		},
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, cs)
}

// requestOrigin is the storefront origin the shopper used, honouring a TLS
// terminating proxy.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func (h *PaymentHandler) OrderDetails(w http.ResponseWriter, r *http.Request) {
	var req OrderDetailsRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	id := strings.TrimSpace(req.PaymentIntentID)
	if id == "" {
		id = strings.TrimSpace(req.SessionID)
	}
	if id == "" {
		respondError(w, r, http.StatusBadRequest, "missing_id", "paymentIntentId or sessionId is required")
		return
	}

	details, err := h.gateway.RetrieveOrderDetails(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, details)
}
