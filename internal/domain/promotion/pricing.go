package promotion

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceLine computes the effective unit price for a base price under an
// optional promotion. The promotion must already have passed the
// per-product applicability check; pass nil to price without one.
//
// The discounted flag is true only when the effective price differs from
// the base numerically, so a 0% or $0 discount is not recorded as a
// discount. All arithmetic stays in decimal; results round to 2 places.
func PriceLine(base decimal.Decimal, promo *Promotion) (effective decimal.Decimal, discounted bool) {
	if promo == nil {
		return base, false
	}

	switch promo.DiscountType {
	case DiscountPercentage:
		effective = base.Mul(hundred.Sub(promo.DiscountValue)).Div(hundred).Round(2)
	case DiscountFixed:
		effective = base.Sub(promo.DiscountValue)
		if effective.IsNegative() {
			effective = decimal.Zero
		}
		effective = effective.Round(2)
	default:
		return base, false
	}

	return effective, !effective.Equal(base)
}

// CartApplicable checks the whole-cart precondition for accepting a promo
// code: at least one of the given product ids must be covered by the
// promotion. Returns ErrNotApplicable otherwise.
func CartApplicable(promo *Promotion, productIDs []string) error {
	for _, id := range productIDs {
		if promo.AppliesTo(id) {
			return nil
		}
	}
	return ErrNotApplicable
}
