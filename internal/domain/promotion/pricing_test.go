package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceLine(t *testing.T) {
	tests := []struct {
		name           string
		base           string
		promoType      DiscountType
		promoValue     string
		wantPrice      string
		wantDiscounted bool
	}{
		{
			name:           "percentage discount",
			base:           "50.00",
			promoType:      DiscountPercentage,
			promoValue:     "10",
			wantPrice:      "45.00",
			wantDiscounted: true,
		},
		{
			name:           "percentage rounds to cents",
			base:           "19.99",
			promoType:      DiscountPercentage,
			promoValue:     "15",
			wantPrice:      "16.99",
			wantDiscounted: true,
		},
		{
			name:           "zero percent leaves price unchanged",
			base:           "80.00",
			promoType:      DiscountPercentage,
			promoValue:     "0",
			wantPrice:      "80.00",
			wantDiscounted: false,
		},
		{
			name:           "hundred percent discounts to zero",
			base:           "80.00",
			promoType:      DiscountPercentage,
			promoValue:     "100",
			wantPrice:      "0.00",
			wantDiscounted: true,
		},
		{
			name:           "fixed discount",
			base:           "80.00",
			promoType:      DiscountFixed,
			promoValue:     "5",
			wantPrice:      "75.00",
			wantDiscounted: true,
		},
		{
			name:           "fixed discount clamps at zero",
			base:           "80.00",
			promoType:      DiscountFixed,
			promoValue:     "150",
			wantPrice:      "0.00",
			wantDiscounted: true,
		},
		{
			name:           "fixed zero leaves price unchanged",
			base:           "80.00",
			promoType:      DiscountFixed,
			promoValue:     "0",
			wantPrice:      "80.00",
			wantDiscounted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promo := &Promotion{
				DiscountType:  tt.promoType,
				DiscountValue: dec(tt.promoValue),
			}

			price, discounted := PriceLine(dec(tt.base), promo)

			assert.True(t, dec(tt.wantPrice).Equal(price), "want %s, got %s", tt.wantPrice, price)
			assert.Equal(t, tt.wantDiscounted, discounted)
		})
	}
}

func TestPriceLine_NilPromotion(t *testing.T) {
	price, discounted := PriceLine(dec("50.00"), nil)

	assert.True(t, dec("50.00").Equal(price))
	assert.False(t, discounted)
}

func TestActiveAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	promo := &Promotion{
		Active:    true,
		StartDate: start,
		EndDate:   end,
	}

	// Both bounds are inclusive.
	assert.True(t, promo.ActiveAt(start))
	assert.True(t, promo.ActiveAt(end))
	assert.True(t, promo.ActiveAt(start.Add(15*24*time.Hour)))

	assert.False(t, promo.ActiveAt(start.Add(-time.Second)))
	assert.False(t, promo.ActiveAt(end.Add(time.Second)))

	promo.Active = false
	assert.False(t, promo.ActiveAt(start.Add(15*24*time.Hour)))
}

func TestAppliesTo(t *testing.T) {
	scoped := &Promotion{ApplicableProducts: []string{"p1", "p2"}}
	assert.True(t, scoped.AppliesTo("p1"))
	assert.False(t, scoped.AppliesTo("p3"))

	// An empty applicable set covers nothing.
	empty := &Promotion{}
	assert.False(t, empty.AppliesTo("p3"))
}

func TestCartApplicable(t *testing.T) {
	promo := &Promotion{ApplicableProducts: []string{"p2"}}

	require.NoError(t, CartApplicable(promo, []string{"p1", "p2"}))

	err := CartApplicable(promo, []string{"p1", "p3"})
	require.ErrorIs(t, err, ErrNotApplicable)

	// A promotion with no applicable products never matches a cart.
	require.ErrorIs(t, CartApplicable(&Promotion{}, []string{"p9"}), ErrNotApplicable)
}
