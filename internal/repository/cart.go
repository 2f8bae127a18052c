package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tipdoor/tipdoor/internal/domain/cart"
)

const (
	// The no-op DO UPDATE makes the upsert return the existing row, so a
	// single round-trip implements find-or-insert per owner.
	upsertCustomerCartSQL = `INSERT INTO carts (id, customer_id) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, COALESCE(customer_id, ''), COALESCE(session_key, ''), created_at`

	upsertSessionCartSQL = `INSERT INTO carts (id, session_key) VALUES ($1, $2)
		ON CONFLICT (session_key) DO UPDATE SET session_key = EXCLUDED.session_key
		RETURNING id, COALESCE(customer_id, ''), COALESCE(session_key, ''), created_at`

	cartLinesSQL = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
			p.id, p.vendor_id, p.name, p.price, p.sku, p.stock, p.is_published, p.created_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`

	addCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	updateCartItemSQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate finds the owner's cart, creating an empty one when absent.
// The unique constraints on customer_id and session_key make this safe
// under concurrent first access.
func (r *CartRepository) GetOrCreate(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	query, key := upsertCustomerCartSQL, owner.CustomerID
	if owner.SessionKey != "" {
		query, key = upsertSessionCartSQL, owner.SessionKey
	}

	var c cart.Cart
	err := r.pool.QueryRow(ctx, query, uuid.New().String(), key).Scan(
		&c.ID, &c.CustomerID, &c.SessionKey, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return &c, nil
}

// Lines returns the cart's items joined with their products.
func (r *CartRepository) Lines(ctx context.Context, cartID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, cartLinesSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// AddItem inserts a new item or merges the quantity into the existing
// (cart, product) row.
func (r *CartRepository) AddItem(ctx context.Context, cartID, productID string, quantity int) error {
	_, err := r.pool.Exec(ctx, addCartItemSQL, uuid.New().String(), cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// UpdateItemQuantity replaces an item's quantity.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, updateCartItemSQL, cartID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// RemoveItem deletes one item from the cart.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(
		&l.Item.ID, &l.Item.CartID, &l.Item.ProductID, &l.Item.Quantity,
		&l.Product.ID, &l.Product.VendorID, &l.Product.Name, &l.Product.Price,
		&l.Product.SKU, &l.Product.Stock, &l.Product.Published, &l.Product.CreatedAt,
	)
	return l, err
}
