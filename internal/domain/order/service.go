package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/cart"
	"github.com/tipdoor/tipdoor/internal/domain/promotion"
)

// PaymentInfo is accepted on checkout but never validated, charged, or
// stored. Payment processing is outside this service.
type PaymentInfo struct {
	CardNumber string
	Expiry     string
	CVV        string
}

// CreateOrderRequest holds the input for the checkout state transition.
type CreateOrderRequest struct {
	CustomerID string
	Address    ShippingAddress
	PromoCode  string
	Payment    PaymentInfo
}

// CreateOrderResult is the created order plus the discounted total for
// the immediate response. The discounted total is not persisted.
type CreateOrderResult struct {
	Order           *Order
	DiscountedTotal decimal.Decimal
}

// Service implements order checkout and the vendor status workflow.
type Service struct {
	checkout   CheckoutStore
	orders     Repository
	promotions promotion.Repository
	approvals  ApprovalNotifier
	now        func() time.Time
}

// NewService creates an order Service. approvals may be nil when no
// delivery dispatch is wired.
func NewService(
	checkout CheckoutStore,
	orders Repository,
	promotions promotion.Repository,
	approvals ApprovalNotifier,
) *Service {
	return &Service{
		checkout:   checkout,
		orders:     orders,
		promotions: promotions,
		approvals:  approvals,
		now:        time.Now,
	}
}

// CreateOrder converts the customer's cart into an immutable priced
// order. Preconditions are checked in a fixed sequence, first failure
// wins: complete shipping address, non-empty cart, then promo code
// resolution and cart-wide applicability. Order creation, item creation,
// and cart clearing happen as one atomic unit; concurrent submissions
// from the same cart are serialized by the checkout store, so the loser
// of a double-submit observes an empty cart.
//
// Stock is intentionally not decremented here; inventory reservation is
// a pending product decision.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}

	owner := cart.Owner{CustomerID: req.CustomerID}
	discountedTotal := decimal.Zero

	o, err := s.checkout.Checkout(ctx, owner, func(lines []cart.Line) (*Order, error) {
		if len(lines) == 0 {
			return nil, ErrEmptyCart
		}

		promo, err := s.resolvePromotion(ctx, req.PromoCode, lines)
		if err != nil {
			return nil, err
		}

		orderID := uuid.New().String()
		items := make([]Item, len(lines))
		total := decimal.Zero
		discounted := decimal.Zero

		for i, line := range lines {
			unit := line.Product.Price

			var linePromo *promotion.Promotion
			if promo != nil && promo.AppliesTo(line.Product.ID) {
				linePromo = promo
			}
			effective, isDiscounted := promotion.PriceLine(unit, linePromo)

			item := Item{
				ID:          uuid.New().String(),
				OrderID:     orderID,
				ProductID:   line.Product.ID,
				ProductName: line.Product.Name,
				Quantity:    line.Item.Quantity,
				Price:       unit,
			}
			if isDiscounted {
				dp := effective
				item.DiscountedPrice = &dp
			}
			items[i] = item

			qty := decimal.NewFromInt(int64(line.Item.Quantity))
			total = total.Add(unit.Mul(qty))
			discounted = discounted.Add(effective.Mul(qty))
		}

		discountedTotal = discounted.Round(2)

		// The code is stamped only when a promotion was resolved and
		// passed the cart gate, not merely supplied.
		promoCode := ""
		if promo != nil {
			promoCode = promo.Code
		}

		return &Order{
			ID:          orderID,
			CustomerID:  req.CustomerID,
			Address:     req.Address,
			TotalAmount: total.Round(2),
			Status:      StatusPending,
			PromoCode:   promoCode,
			Items:       items,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return &CreateOrderResult{Order: o, DiscountedTotal: discountedTotal}, nil
}

// resolvePromotion looks up the promo code (when given) and enforces the
// whole-cart applicability gate. Returns nil when no code was supplied.
func (s *Service) resolvePromotion(ctx context.Context, code string, lines []cart.Line) (*promotion.Promotion, error) {
	if code == "" {
		return nil, nil
	}

	promo, err := s.promotions.FindActiveByCode(ctx, code, s.now())
	if err != nil {
		if errors.Is(err, promotion.ErrNotFound) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrap(err, "resolve promotion")
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.Product.ID
	}
	if err := promotion.CartApplicable(promo, ids); err != nil {
		return nil, err
	}

	return promo, nil
}

// UpdateStatus is the vendor-driven workflow transition. The acting
// vendor must own at least one item in the order. DELIVERED is terminal;
// CANCELLED is reachable only from PENDING; any other target is allowed.
// A transition to APPROVED fires the delivery dispatch hook after the
// update is persisted.
func (s *Service) UpdateStatus(ctx context.Context, orderID, vendorID string, target Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	owns, err := s.orders.VendorOwnsItem(ctx, orderID, vendorID)
	if err != nil {
		return nil, errors.Wrap(err, "check vendor ownership")
	}
	if !owns {
		return nil, ErrForbidden
	}

	if o.Status == StatusDelivered {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}
	if target == StatusCancelled && o.Status != StatusPending {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}

	if err := s.orders.UpdateStatus(ctx, orderID, target); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = target

	if target == StatusApproved && s.approvals != nil {
		s.approvals.OrderApproved(ctx, o)
	}

	return o, nil
}

// GetForCustomer returns one order, hiding other customers' orders
// behind ErrNotFound.
func (s *Service) GetForCustomer(ctx context.Context, orderID, customerID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForCustomer returns the customer's orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

// ListForVendor returns orders containing at least one of the vendor's
// products, newest first.
func (s *Service) ListForVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return s.orders.ListContainingVendor(ctx, vendorID)
}
