package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promotion discount strategies.
type DiscountType string

const (
	// DiscountPercentage reduces a unit price by a percentage (0-100).
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount from a unit price, floored at zero.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no active promotion matches a code.
	// A mistyped, expired, and deactivated code are indistinguishable to
	// the caller.
	ErrNotFound = errors.New("promotion not found")
	// ErrNotApplicable is returned when a promotion exists but covers none
	// of the products in the caller's cart.
	ErrNotApplicable = errors.New("promotion not applicable to any cart item")
)

// Promotion is a time-windowed discount rule scoped to a subset of one
// vendor's products.
type Promotion struct {
	ID                 string
	VendorID           string
	Title              string
	Description        string
	Code               string
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	ApplicableProducts []string
	StartDate          time.Time
	EndDate            time.Time
	Active             bool
	CreatedAt          time.Time
}

// ActiveAt reports whether the promotion can be used for pricing at the
// given instant. Both window bounds are inclusive.
func (p *Promotion) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// AppliesTo reports whether the promotion covers the given product.
// A promotion with an empty applicable-products set applies to nothing.
func (p *Promotion) AppliesTo(productID string) bool {
	for _, id := range p.ApplicableProducts {
		if id == productID {
			return true
		}
	}
	return false
}

// Repository defines persistence operations for promotions.
type Repository interface {
	// FindActiveByCode returns the single promotion with the exact code
	// that is active at now. ErrNotFound when no such promotion exists.
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*Promotion, error)
	Create(ctx context.Context, p *Promotion) error
	ListByVendor(ctx context.Context, vendorID string) ([]Promotion, error)
}
