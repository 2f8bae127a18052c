package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/promotion"
)

type promotionResponse struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Code               string          `json:"promo_code"`
	DiscountType       string          `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	ApplicableProducts []string        `json:"applicable_products"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	Active             bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toPromotionResponse(p *promotion.Promotion) promotionResponse {
	products := p.ApplicableProducts
	if products == nil {
		products = []string{}
	}
	return promotionResponse{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Code:               p.Code,
		DiscountType:       string(p.DiscountType),
		DiscountValue:      p.DiscountValue,
		ApplicableProducts: products,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		Active:             p.Active,
		CreatedAt:          p.CreatedAt,
	}
}

type createPromotionRequest struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Code               string          `json:"promo_code"`
	DiscountType       string          `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	ApplicableProducts []string        `json:"applicable_products"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
}

// CreatePromotion registers a promotion for the authenticated vendor.
// Every applicable product must belong to that vendor.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req createPromotionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.promotions.Create(r.Context(), actor.ID, promotion.Draft{
		Title:              req.Title,
		Description:        req.Description,
		Code:               req.Code,
		DiscountType:       promotion.DiscountType(req.DiscountType),
		DiscountValue:      req.DiscountValue,
		ApplicableProducts: req.ApplicableProducts,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPromotionResponse(p))
}

// ListPromotions returns the authenticated vendor's promotions.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	promotions, err := h.promotions.ListByVendor(r.Context(), actor.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]promotionResponse, len(promotions))
	for i := range promotions {
		out[i] = toPromotionResponse(&promotions[i])
	}
	respondJSON(w, http.StatusOK, out)
}
