package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/syedhariswaseem/lazr/internal/payment"
	"github.com/syedhariswaseem/lazr/pkg/logger"
)

type WebhookHandler struct {
	secret    string
	tolerance time.Duration
	events    payment.EventHandler
	now       func() time.Time
}

func NewWebhookHandler(secret string, events payment.EventHandler) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		tolerance: payment.DefaultWebhookTolerance,
		events:    events,
		now:       time.Now,
	}
}

// Stripe verifies the signature before acting on the event. Handler failures
// answer 500 so the processor redelivers.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	if h.secret == "" {
		respondError(w, r, http.StatusServiceUnavailable, "webhook_disabled", "webhook secret is not configured")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}

	err = payment.VerifySignature(payload, r.Header.Get(payment.SignatureHeader), h.secret, h.tolerance, h.now())
	if err != nil {
		log.WarnContext(r.Context(), "rejected webhook", "error", err)
		respondError(w, r, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}

	ev, err := payment.ParseEvent(payload)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	if err := h.events.HandlePaymentEvent(r.Context(), *ev); err != nil {
		log.ErrorContext(r.Context(), "failed to handle webhook event", "event_id", ev.ID, "event_type", ev.Type, "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "event handling failed")
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
