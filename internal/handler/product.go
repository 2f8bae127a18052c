package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/product"
)

// defaultLatestLimit bounds the latest-arrivals listing when the client
// does not ask for a specific count.
const defaultLatestLimit = 5

// productResponse is the JSON shape of a product in API responses.
type productResponse struct {
	ID        string          `json:"id"`
	VendorID  string          `json:"vendor_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	SKU       string          `json:"sku"`
	Stock     int             `json:"stock"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		VendorID:  p.VendorID,
		Name:      p.Name,
		Price:     p.Price,
		SKU:       p.SKU,
		Stock:     p.Stock,
		Status:    string(p.Status()),
		CreatedAt: p.CreatedAt,
	}
}

func toProductResponses(products []product.Product) []productResponse {
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	return out
}

// ListProducts returns all published products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponses(products))
}

// SearchProducts returns published products whose name or SKU contains
// the q parameter. A blank query matches nothing.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSON(w, http.StatusOK, []productResponse{})
		return
	}

	products, err := h.products.Search(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponses(products))
}

// LatestProducts returns the most recently added published products,
// newest first.
func (h *Handler) LatestProducts(w http.ResponseWriter, r *http.Request) {
	limit := defaultLatestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, errors.Wrap(errBadRequest, "invalid limit"))
			return
		}
		limit = n
	}

	products, err := h.products.LatestArrivals(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponses(products))
}

// GetProduct returns a single published product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*p))
}

type createProductRequest struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	SKU       string          `json:"sku"`
	Stock     int             `json:"stock"`
	Published bool            `json:"published"`
}

// CreateProduct adds a product to the authenticated vendor's catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req createProductRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SKU) == "" {
		respondError(w, r, errors.Wrap(errBadRequest, "name and sku required"))
		return
	}
	if req.Price.IsNegative() || req.Stock < 0 {
		respondError(w, r, errors.Wrap(errBadRequest, "price and stock must be non-negative"))
		return
	}

	p := &product.Product{
		VendorID:  actor.ID,
		Name:      req.Name,
		Price:     req.Price,
		SKU:       req.SKU,
		Stock:     req.Stock,
		Published: req.Published,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProductResponse(*p))
}
