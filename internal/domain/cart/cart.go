package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/product"
)

// Sentinel errors for cart operations.
var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrNoOwner      = errors.New("cart owner required: customer id or session key")
	ErrBothOwners   = errors.New("cart cannot belong to both a customer and a session")
)

// Owner identifies who holds a cart: an authenticated customer or an
// anonymous session. Exactly one of the two fields must be set.
type Owner struct {
	CustomerID string
	SessionKey string
}

// Validate checks the exactly-one-owner invariant.
func (o Owner) Validate() error {
	switch {
	case o.CustomerID == "" && o.SessionKey == "":
		return ErrNoOwner
	case o.CustomerID != "" && o.SessionKey != "":
		return ErrBothOwners
	default:
		return nil
	}
}

// Cart is the mutable pre-order working set for one owner. It is created
// lazily on first access and its items are cleared atomically on checkout.
type Cart struct {
	ID         string
	CustomerID string
	SessionKey string
	CreatedAt  time.Time
}

// Item is a single product entry within a cart. At most one item exists
// per (cart, product) pair; re-adding merges quantities.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
}

// Line pairs a cart item with its product for display and pricing.
type Line struct {
	Item    Item
	Product product.Product
}

// Subtotal returns the undiscounted price of the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Item.Quantity)))
}

// Repository defines persistence operations for carts and their items.
type Repository interface {
	// GetOrCreate finds the owner's cart, creating an empty one when absent.
	GetOrCreate(ctx context.Context, owner Owner) (*Cart, error)
	// Lines returns the cart's items joined with their products, in
	// insertion order.
	Lines(ctx context.Context, cartID string) ([]Line, error)
	// AddItem inserts a new item or, when the product is already in the
	// cart, adds the quantity to the existing row.
	AddItem(ctx context.Context, cartID, productID string, quantity int) error
	// UpdateItemQuantity replaces an item's quantity. The item must belong
	// to the given cart; ErrItemNotFound otherwise.
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error
	// RemoveItem deletes one item from the cart. ErrItemNotFound when the
	// item does not exist in the given cart.
	RemoveItem(ctx context.Context, cartID, itemID string) error
}
