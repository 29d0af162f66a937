package httpapi

import (
	"net/http"

	"github.com/syedhariswaseem/lazr/internal/checkout"
	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/flow"
)

type CheckoutHandler struct {
	flow      *flow.Orchestrator
	checkouts *checkout.Service
}

func NewCheckoutHandler(orch *flow.Orchestrator, checkouts *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{flow: orch, checkouts: checkouts}
}

type CheckoutResponse struct {
	Flow     *flow.Flow     `json:"flow"`
	Checkout checkout.State `json:"checkout"`
}

type PaymentFieldsRequestDTO struct {
	Complete bool `json:"complete"`
}

type SubmitRequestDTO struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	fl, err := h.flow.Current(r.Context(), sid)
	if err != nil {
		handleError(w, r, err)
		return
	}
	store := h.checkouts.Load(r.Context(), sid)
	respondJSON(w, r, http.StatusOK, CheckoutResponse{Flow: fl, Checkout: store.State()})
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var info domain.CustomerInfo
	if err := decodeJSON(r, &info); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	fl, err := h.flow.PlaceOrder(r.Context(), sessionID(r), info)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, fl)
}

func (h *CheckoutHandler) SetPaymentFields(w http.ResponseWriter, r *http.Request) {
	var req PaymentFieldsRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	fl, err := h.flow.SetPaymentFieldsComplete(r.Context(), sessionID(r), req.Complete)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, fl)
}

// Submit confirms the payment. A decline is answered with 402 and the flow so
// the form can show the message; a processing payment with 202.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.flow.Submit(r.Context(), sessionID(r), req.PaymentMethod)
	if err != nil {
		handleError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case res.Flow.State == flow.StateSucceeded:
	case res.Flow.MessageKind == flow.MessageInfo:
		status = http.StatusAccepted
	default:
		status = http.StatusPaymentRequired
	}
	respondJSON(w, r, status, res)
}

// GetSnapshot serves the confirmation view once the store has hydrated.
func (h *CheckoutHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	store := h.checkouts.Open(r.Context(), sessionID(r))
	if err := store.Wait(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	snap, ok := store.Snapshot()
	if !ok {
		respondError(w, r, http.StatusNotFound, "not_found", "no completed order")
		return
	}
	respondJSON(w, r, http.StatusOK, snap)
}

// ClearSnapshot leaves the confirmation context: the snapshot and the flow
// are both forgotten.
func (h *CheckoutHandler) ClearSnapshot(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if err := h.checkouts.NewStore(sid).Clear(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.flow.Reset(r.Context(), sid); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "cleared"})
}
