package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/cart"
)

// Status is the fulfillment state of an order. The canonical vocabulary is
// uppercase; ParseStatus accepts any case on input.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusAssigned  Status = "ASSIGNED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// ErrUnknownStatus is returned when a status string is not one of the
// canonical five values.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus normalizes a status string to its canonical uppercase form.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusAssigned, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Sentinel errors for order operations.
var (
	ErrNotFound           = errors.New("order not found")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrShippingIncomplete = errors.New("shipping address incomplete")
	ErrForbidden          = errors.New("vendor has no items in this order")
)

// InvalidTransitionError indicates a status change that the workflow
// does not permit.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return "invalid status transition " + string(e.From) + " -> " + string(e.To)
}

// ShippingAddress is the destination captured on an order. All four
// fields are required.
type ShippingAddress struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Validate checks that every address field is present and non-blank.
func (a ShippingAddress) Validate() error {
	for _, f := range []string{a.Street, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(f) == "" {
			return ErrShippingIncomplete
		}
	}
	return nil
}

// String renders the address as a single line, the form the delivery
// matcher compares service areas against.
func (a ShippingAddress) String() string {
	return strings.Join([]string{a.Street, a.City, a.PostalCode, a.Country}, ", ")
}

// Order is the immutable record of a completed checkout. Only Status may
// change after creation. TotalAmount is the undiscounted sum captured
// once at creation and never recomputed.
type Order struct {
	ID          string
	CustomerID  string
	Address     ShippingAddress
	TotalAmount decimal.Decimal
	Status      Status
	PromoCode   string
	Items       []Item
	CreatedAt   time.Time
}

// Item is one line within an order. Price is the unit price at order
// time, immune to later product price changes. DiscountedPrice is nil
// when no discount applied to this line.
type Item struct {
	ID              string
	OrderID         string
	ProductID       string
	ProductName     string
	Quantity        int
	Price           decimal.Decimal
	DiscountedPrice *decimal.Decimal
}

// AssembleFunc prices a cart snapshot into an order. It runs inside the
// checkout transaction, after the cart lines are read under lock.
type AssembleFunc func(lines []cart.Line) (*Order, error)

// CheckoutStore runs the atomic cart-to-order transition: read the
// owner's cart items under a row lock, call assemble, persist the order
// with its items, and delete the cart items — all in one transaction.
// Any error aborts the whole unit with no state change.
type CheckoutStore interface {
	Checkout(ctx context.Context, owner cart.Owner, assemble AssembleFunc) (*Order, error)
}

// Repository defines read and status-update operations on stored orders.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListContainingVendor(ctx context.Context, vendorID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// VendorOwnsItem reports whether the vendor owns at least one product
	// referenced by the order's items.
	VendorOwnsItem(ctx context.Context, orderID, vendorID string) (bool, error)
}

// ApprovalNotifier is the hook fired after an order transitions to
// APPROVED. Implementations must not block the status update and must
// swallow their own failures.
type ApprovalNotifier interface {
	OrderApproved(ctx context.Context, o *Order)
}
