package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/auth"
	"github.com/tipdoor/tipdoor/internal/domain/order"
)

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type orderItemResponse struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	ProductName     string           `json:"product_name"`
	Quantity        int              `json:"quantity"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	Address     addressPayload      `json:"shipping_address"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Status      string              `json:"status"`
	PromoCode   string              `json:"promo_code,omitempty"`
	Items       []orderItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			Price:           it.Price,
			DiscountedPrice: it.DiscountedPrice,
		}
	}
	return orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Address: addressPayload{
			Street:     o.Address.Street,
			City:       o.Address.City,
			PostalCode: o.Address.PostalCode,
			Country:    o.Address.Country,
		},
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		PromoCode:   o.PromoCode,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}

type createOrderRequest struct {
	ShippingAddress addressPayload `json:"shipping_address"`
	PromoCode       string         `json:"promo_code"`
	Payment         struct {
		CardNumber string `json:"card_number"`
		Expiry     string `json:"expiry"`
		CVV        string `json:"cvv"`
	} `json:"payment"`
}

// createOrderResponse extends the order with the discounted total, which
// exists only in this immediate response.
type createOrderResponse struct {
	orderResponse
	DiscountedTotal decimal.Decimal `json:"discounted_total"`
}

// CreateOrder converts the customer's cart into an order in one atomic
// step, applying the promo code when one is given.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		CustomerID: actor.ID,
		Address: order.ShippingAddress{
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PromoCode: req.PromoCode,
		Payment: order.PaymentInfo{
			CardNumber: req.Payment.CardNumber,
			Expiry:     req.Payment.Expiry,
			CVV:        req.Payment.CVV,
		},
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, createOrderResponse{
		orderResponse:   toOrderResponse(result.Order),
		DiscountedTotal: result.DiscountedTotal,
	})
}

// ListOrders returns the caller's order history: customers see their own
// orders, vendors see every order containing one of their products.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var (
		orders []order.Order
		err    error
	)
	switch actor.Type {
	case auth.ActorVendor:
		orders, err = h.orders.ListForVendor(r.Context(), actor.ID)
	default:
		orders, err = h.orders.ListForCustomer(r.Context(), actor.ID)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// GetOrder returns one of the customer's own orders. Other customers'
// orders are indistinguishable from missing ones.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	o, err := h.orders.GetForCustomer(r.Context(), r.PathValue("id"), actor.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order through the vendor workflow. Only
// vendors with at least one item in the order may change its status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req updateOrderStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), actor.ID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
