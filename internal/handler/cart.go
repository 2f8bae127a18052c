package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/cart"
)

// cartLineResponse is one product line in a cart response.
type cartLineResponse struct {
	ItemID    string          `json:"item_id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	Lines     []cartLineResponse `json:"items"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	CreatedAt time.Time          `json:"created_at"`
}

func toCartResponse(v *cart.View) cartResponse {
	lines := make([]cartLineResponse, len(v.Lines))
	for i, l := range v.Lines {
		lines[i] = cartLineResponse{
			ItemID:    l.Item.ID,
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Item.Quantity,
			Subtotal:  l.Subtotal(),
		}
	}
	return cartResponse{
		ID:        v.Cart.ID,
		Lines:     lines,
		Subtotal:  v.Subtotal,
		CreatedAt: v.Cart.CreatedAt,
	}
}

// GetCart returns the caller's cart, creating an empty one on first
// access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.View(r.Context(), cartOwner(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddCartItem puts a product into the cart, merging quantities when the
// product is already present.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := h.carts.AddItem(r.Context(), cartOwner(r), req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets the quantity of an existing cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := h.carts.UpdateItem(r.Context(), cartOwner(r), r.PathValue("id"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

// RemoveCartItem deletes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.RemoveItem(r.Context(), cartOwner(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}
