package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tipdoor/tipdoor/internal/domain/auth"
	"github.com/tipdoor/tipdoor/internal/domain/cart"
	"github.com/tipdoor/tipdoor/internal/domain/delivery"
	"github.com/tipdoor/tipdoor/internal/domain/order"
	"github.com/tipdoor/tipdoor/internal/domain/product"
	"github.com/tipdoor/tipdoor/internal/domain/promotion"
)

// Handler exposes the HTTP API, delegating business logic to the domain
// services and mapping domain errors to status codes.
type Handler struct {
	products   product.Repository
	carts      *cart.Service
	orders     *order.Service
	promotions *promotion.Service
	deliveries *delivery.Service
	security   *Security
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
	promotions *promotion.Service,
	deliveries *delivery.Service,
	security *Security,
) *Handler {
	return &Handler{
		products:   products,
		carts:      carts,
		orders:     orders,
		promotions: promotions,
		deliveries: deliveries,
		security:   security,
	}
}

// Routes registers every API endpoint on the mux. Catalog reads are
// public; everything else requires an API key bound to the right kind
// of actor.
func (h *Handler) Routes(mux *http.ServeMux) {
	sec := h.security

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/search", h.SearchProducts)
	mux.HandleFunc("GET /api/products/latest", h.LatestProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.Handle("POST /api/products", sec.Require(h.CreateProduct, auth.ActorVendor))

	mux.Handle("GET /api/cart", sec.AllowSession(h.GetCart))
	mux.Handle("POST /api/cart/items", sec.AllowSession(h.AddCartItem))
	mux.Handle("PATCH /api/cart/items/{id}", sec.AllowSession(h.UpdateCartItem))
	mux.Handle("DELETE /api/cart/items/{id}", sec.AllowSession(h.RemoveCartItem))

	mux.Handle("POST /api/orders", sec.Require(h.CreateOrder, auth.ActorCustomer))
	mux.Handle("GET /api/orders", sec.Require(h.ListOrders, auth.ActorCustomer, auth.ActorVendor))
	mux.Handle("GET /api/orders/{id}", sec.Require(h.GetOrder, auth.ActorCustomer))
	mux.Handle("POST /api/orders/{id}/status", sec.Require(h.UpdateOrderStatus, auth.ActorVendor))

	mux.Handle("POST /api/promotions", sec.Require(h.CreatePromotion, auth.ActorVendor))
	mux.Handle("GET /api/promotions", sec.Require(h.ListPromotions, auth.ActorVendor))

	mux.Handle("POST /api/assignments", sec.Require(h.AssignOrder, auth.ActorVendor))
	mux.Handle("GET /api/assignments", sec.Require(h.ListAssignments, auth.ActorPartner))
	mux.Handle("POST /api/assignments/{id}/status", sec.Require(h.UpdateAssignmentStatus, auth.ActorPartner))
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondJSON(w, status, errorResponse{Code: status, Message: "internal error"})
		return
	}
	respondJSON(w, status, errorResponse{Code: status, Message: err.Error()})
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) int {
	var (
		iqErr *cart.InvalidQuantityError
		itErr *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrForbidden),
		errors.Is(err, delivery.ErrNotAssignedPartner):
		return http.StatusForbidden
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, promotion.ErrNotFound),
		errors.Is(err, delivery.ErrAssignmentNotFound),
		errors.Is(err, delivery.ErrPartnerNotFound):
		return http.StatusNotFound
	case errors.As(err, &itErr),
		errors.Is(err, delivery.ErrAlreadyDelivered):
		return http.StatusConflict
	case errors.As(err, &iqErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrShippingIncomplete),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, promotion.ErrNotApplicable),
		errors.Is(err, promotion.ErrTitleRequired),
		errors.Is(err, promotion.ErrCodeRequired),
		errors.Is(err, promotion.ErrWindowInverted),
		errors.Is(err, promotion.ErrValueOutOfRange),
		errors.Is(err, promotion.ErrValueNegative),
		errors.Is(err, promotion.ErrUnknownType),
		errors.Is(err, promotion.ErrForeignProducts),
		errors.Is(err, delivery.ErrStatusNotAllowed),
		errors.Is(err, cart.ErrNoOwner),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks request decoding and parameter errors.
var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, "invalid request body")
	}
	return nil
}
