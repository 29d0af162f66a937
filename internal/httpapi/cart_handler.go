package httpapi

import (
	"context"
	"net/http"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/domain"
)

type ProductGetter interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type CartHandler struct {
	carts    *cart.Service
	products ProductGetter
}

func NewCartHandler(carts *cart.Service, products ProductGetter) *CartHandler {
	return &CartHandler{carts: carts, products: products}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items     []domain.CartLine `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  int64             `json:"subtotal"`
	Tax       int64             `json:"tax"`
	Total     int64             `json:"total"`
}

func cartResponse(s *cart.Store) CartResponse {
	lines := s.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	totals := s.Totals()
	return CartResponse{
		Items:     lines,
		ItemCount: count,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Total:     totals.Total,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.carts.Open(r.Context(), sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(s))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	s, err := h.carts.Open(r.Context(), sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.AddItem(r.Context(), *product, req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, cartResponse(s))
}

// UpdateQuantity sets a line's quantity. Quantities below one leave the cart
// unchanged; use RemoveItem to drop a line.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r, "product_id")
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s, err := h.carts.Open(r.Context(), sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.UpdateQuantity(r.Context(), productID, req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(s))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r, "product_id")
	if !ok {
		return
	}

	s, err := h.carts.Open(r.Context(), sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.RemoveItem(r.Context(), productID); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(s))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.carts.Open(r.Context(), sessionID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.Clear(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(s))
}
