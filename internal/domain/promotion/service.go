package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/product"
)

// Validation errors for promotion creation.
var (
	ErrTitleRequired   = errors.New("title required")
	ErrCodeRequired    = errors.New("promo code required")
	ErrWindowInverted  = errors.New("end date must be after start date")
	ErrValueOutOfRange = errors.New("percentage discount value must be between 0 and 100")
	ErrValueNegative   = errors.New("discount value must not be negative")
	ErrUnknownType     = errors.New("unknown discount type")
	ErrForeignProducts = errors.New("applicable products must belong to the vendor")
)

// Draft holds vendor input for creating a promotion.
type Draft struct {
	Title              string
	Description        string
	Code               string
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	ApplicableProducts []string
	StartDate          time.Time
	EndDate            time.Time
}

// Validate checks the draft's own invariants: a non-empty title and code,
// a forward validity window, and discount value bounds (0-100 for
// percentage, non-negative for fixed).
func (d Draft) Validate() error {
	if d.Title == "" {
		return ErrTitleRequired
	}
	if d.Code == "" {
		return ErrCodeRequired
	}
	if !d.EndDate.After(d.StartDate) {
		return ErrWindowInverted
	}
	if d.DiscountValue.IsNegative() {
		return ErrValueNegative
	}

	switch d.DiscountType {
	case DiscountPercentage:
		if d.DiscountValue.GreaterThan(hundred) {
			return ErrValueOutOfRange
		}
	case DiscountFixed:
		// Any non-negative value is allowed.
	default:
		return ErrUnknownType
	}

	return nil
}

// Service handles vendor-side promotion management.
type Service struct {
	promotions Repository
	products   product.Repository
}

// NewService creates a promotion Service.
func NewService(promotions Repository, products product.Repository) *Service {
	return &Service{promotions: promotions, products: products}
}

// Create validates the draft, checks that every applicable product belongs
// to the acting vendor, and persists the promotion as active.
func (s *Service) Create(ctx context.Context, vendorID string, draft Draft) (*Promotion, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if len(draft.ApplicableProducts) > 0 {
		owned, err := s.products.OwnedByVendor(ctx, vendorID, draft.ApplicableProducts)
		if err != nil {
			return nil, errors.Wrap(err, "check product ownership")
		}
		if !owned {
			return nil, ErrForeignProducts
		}
	}

	p := &Promotion{
		ID:                 uuid.New().String(),
		VendorID:           vendorID,
		Title:              draft.Title,
		Description:        draft.Description,
		Code:               draft.Code,
		DiscountType:       draft.DiscountType,
		DiscountValue:      draft.DiscountValue,
		ApplicableProducts: draft.ApplicableProducts,
		StartDate:          draft.StartDate,
		EndDate:            draft.EndDate,
		Active:             true,
	}
	if err := s.promotions.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create promotion")
	}

	return p, nil
}

// ListByVendor returns the vendor's promotions, newest first.
func (s *Service) ListByVendor(ctx context.Context, vendorID string) ([]Promotion, error) {
	promos, err := s.promotions.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return promos, nil
}
