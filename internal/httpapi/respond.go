package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/catalog"
	"github.com/syedhariswaseem/lazr/internal/checkout"
	"github.com/syedhariswaseem/lazr/internal/flow"
	"github.com/syedhariswaseem/lazr/internal/payment"
	"github.com/syedhariswaseem/lazr/pkg/logger"
)

type ErrorResponse struct {
	Error             string            `json:"error"`
	Code              string            `json:"code,omitempty"`
	Details           string            `json:"details,omitempty"`
	Fields            map[string]string `json:"fields,omitempty"`
	FirstInvalidField string            `json:"firstInvalidField,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

// handleError maps domain errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *flow.ValidationError
		gatewayErr    *payment.GatewayError
		notFoundErr   *payment.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, r, http.StatusBadRequest, ErrorResponse{
			Error:             "Please correct the highlighted fields.",
			Code:              "validation_error",
			Fields:            validationErr.Fields,
			FirstInvalidField: validationErr.First,
		})
	case errors.As(err, &gatewayErr):
		status := http.StatusBadGateway
		if gatewayErr.Kind == payment.KindMisconfigured {
			status = http.StatusInternalServerError
		}
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "payment gateway error", "error", err)
		respondJSON(w, r, status, ErrorResponse{
			Error:   "Payment service unavailable. Please try again.",
			Code:    "gateway_error",
			Details: gatewayErr.Message,
		})
	case errors.As(err, &notFoundErr), errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, flow.ErrFlowBusy):
		respondError(w, r, http.StatusConflict, "flow_busy", "A checkout request is already in progress.")
	case errors.Is(err, flow.ErrSessionStale):
		respondError(w, r, http.StatusConflict, "session_stale", "Your cart changed. Please place the order again.")
	case errors.Is(err, flow.ErrNotReady):
		respondError(w, r, http.StatusConflict, "not_ready", err.Error())
	case errors.Is(err, flow.ErrAlreadyCompleted), errors.Is(err, checkout.ErrSnapshotFinalized):
		respondError(w, r, http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, flow.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, "empty_cart", "Your cart is empty.")
	case errors.Is(err, flow.ErrPaymentFieldsIncomplete):
		respondError(w, r, http.StatusBadRequest, "payment_fields_incomplete", "Please complete your payment details.")
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidProduct):
		respondError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
