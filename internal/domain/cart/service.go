package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/domain/product"
)

// InvalidQuantityError indicates a requested quantity below one.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1, got %d", e.Quantity)
}

// View is a cart with its lines and the undiscounted running subtotal.
type View struct {
	Cart     Cart
	Lines    []Line
	Subtotal decimal.Decimal
}

// Service implements cart operations on top of the repository, validating
// owners, products, and quantities.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// View returns the owner's cart, creating an empty one on first access.
func (s *Service) View(ctx context.Context, owner Owner) (*View, error) {
	c, lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}

	return &View{Cart: *c, Lines: lines, Subtotal: subtotal}, nil
}

// AddItem puts a product into the owner's cart. Adding a product that is
// already present merges quantities into the existing line instead of
// creating a second one.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID string, quantity int) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}

	c, err := s.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if err := s.carts.AddItem(ctx, c.ID, productID, quantity); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	return s.View(ctx, owner)
}

// UpdateItem replaces the quantity of an existing cart line.
func (s *Service) UpdateItem(ctx context.Context, owner Owner, itemID string, quantity int) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	c, err := s.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if err := s.carts.UpdateItemQuantity(ctx, c.ID, itemID, quantity); err != nil {
		return nil, err
	}

	return s.View(ctx, owner)
}

// RemoveItem deletes one line from the owner's cart.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, itemID string) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if err := s.carts.RemoveItem(ctx, c.ID, itemID); err != nil {
		return nil, err
	}

	return s.View(ctx, owner)
}

func (s *Service) load(ctx context.Context, owner Owner) (*Cart, []Line, error) {
	if err := owner.Validate(); err != nil {
		return nil, nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get cart")
	}

	lines, err := s.carts.Lines(ctx, c.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list cart items")
	}

	return c, lines, nil
}
