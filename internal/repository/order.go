package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tipdoor/tipdoor/internal/domain/cart"
	"github.com/tipdoor/tipdoor/internal/domain/order"
)

const (
	// Locking the cart row serializes concurrent checkouts from the same
	// cart: the loser of a double-submit waits here, then reads an empty
	// item set and fails the empty-cart precondition.
	lockCustomerCartSQL = `SELECT id FROM carts WHERE customer_id = $1 FOR UPDATE`
	lockSessionCartSQL  = `SELECT id FROM carts WHERE session_key = $1 FOR UPDATE`

	checkoutLinesSQL = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
			p.id, p.vendor_id, p.name, p.price, p.sku, p.stock, p.is_published, p.created_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
		FOR UPDATE OF ci`

	insertOrderSQL = `INSERT INTO orders
		(id, customer_id, street, city, postal_code, country, total_amount, status, promo_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`

	insertOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, quantity, price, discounted_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	clearCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	orderColumns = `o.id, o.customer_id, o.street, o.city, o.postal_code, o.country,
		o.total_amount, o.status, COALESCE(o.promo_code, ''), o.created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	listCustomerOrdersSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.customer_id = $1 ORDER BY o.created_at DESC`

	listVendorOrdersSQL = `SELECT DISTINCT ` + orderColumns + ` FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE p.vendor_id = $1
		ORDER BY o.created_at DESC`

	orderItemsSQL = `SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity,
			oi.price, oi.discounted_price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	vendorOwnsItemSQL = `SELECT EXISTS (
		SELECT 1 FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 AND p.vendor_id = $2
	)`
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ order.CheckoutStore = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.CheckoutStore
// backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Checkout runs the atomic cart-to-order transition. Inside one
// transaction it locks the owner's cart, reads the cart lines, hands
// them to assemble for pricing, persists the resulting order with its
// items, and clears the cart. Any failure rolls the whole unit back:
// no order, no items, cart untouched.
func (r *OrderRepository) Checkout(ctx context.Context, owner cart.Owner, assemble order.AssembleFunc) (*order.Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning checkout: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	lines, err := lockCartLines(ctx, tx, owner)
	if err != nil {
		return nil, err
	}

	o, err := assemble(lines)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID,
		o.Address.Street, o.Address.City, o.Address.PostalCode, o.Address.Country,
		o.TotalAmount, string(o.Status), o.PromoCode,
	)
	if err != nil {
		return nil, fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.Quantity, item.Price, item.DiscountedPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("creating order item %q: %w", item.ID, err)
		}
	}

	if len(lines) > 0 {
		if _, err := tx.Exec(ctx, clearCartItemsSQL, lines[0].Item.CartID); err != nil {
			return nil, fmt.Errorf("clearing cart: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing checkout: %w", err)
	}
	return o, nil
}

// lockCartLines locks the owner's cart row and its items, returning the
// cart lines. A missing cart reads as an empty line set.
func lockCartLines(ctx context.Context, tx pgx.Tx, owner cart.Owner) ([]cart.Line, error) {
	query, key := lockCustomerCartSQL, owner.CustomerID
	if owner.SessionKey != "" {
		query, key = lockSessionCartSQL, owner.SessionKey
	}

	var cartID string
	err := tx.QueryRow(ctx, query, key).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("locking cart: %w", err)
	}

	rows, err := tx.Query(ctx, checkoutLinesSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("reading cart items: %w", err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// GetByID returns one order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByCustomer returns the customer's orders with items, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listCustomerOrdersSQL, customerID)
}

// ListContainingVendor returns orders holding at least one of the
// vendor's products, newest first.
func (r *OrderRepository) ListContainingVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	return r.list(ctx, listVendorOrdersSQL, vendorID)
}

func (r *OrderRepository) list(ctx context.Context, query, arg string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus sets the order's status. order.ErrNotFound when the order
// does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// VendorOwnsItem reports whether the vendor owns at least one product in
// the order.
func (r *OrderRepository) VendorOwnsItem(ctx context.Context, orderID, vendorID string) (bool, error) {
	var owns bool
	err := r.pool.QueryRow(ctx, vendorOwnsItemSQL, orderID, vendorID).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("checking vendor ownership: %w", err)
	}
	return owns, nil
}

// loadItems fills the Items of every given order with a single query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	rows, err := r.pool.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item order.Item
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Price, &item.DiscountedPrice,
		)
		if err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID,
		&o.Address.Street, &o.Address.City, &o.Address.PostalCode, &o.Address.Country,
		&o.TotalAmount, &status, &o.PromoCode, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
