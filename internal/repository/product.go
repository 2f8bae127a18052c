package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tipdoor/tipdoor/internal/domain/product"
)

const (
	productColumns = `id, vendor_id, name, price, sku, stock, is_published, created_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE is_published = TRUE ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	searchProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_published = TRUE AND (name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		ORDER BY id`

	latestArrivalsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_published = TRUE ORDER BY created_at DESC LIMIT $1`

	insertProductSQL = `INSERT INTO products (id, vendor_id, name, price, sku, stock, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	countVendorProductsSQL = `SELECT COUNT(*) FROM products WHERE vendor_id = $1 AND id = ANY($2)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all published products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Search returns published products whose name or SKU contains the query.
func (r *ProductRepository) Search(ctx context.Context, query string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchProductsSQL, query)
	if err != nil {
		return nil, fmt.Errorf("searching products %q: %w", query, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// LatestArrivals returns the newest published products.
func (r *ProductRepository) LatestArrivals(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, latestArrivalsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing latest arrivals: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product. SKU uniqueness is enforced by the table
// constraint.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.VendorID, p.Name, p.Price, p.SKU, p.Stock, p.Published,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// OwnedByVendor reports whether every given product belongs to the vendor.
func (r *ProductRepository) OwnedByVendor(ctx context.Context, vendorID string, productIDs []string) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx, countVendorProductsSQL, vendorID, productIDs).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("counting vendor products: %w", err)
	}
	return count == len(productIDs), nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.VendorID, &p.Name, &p.Price, &p.SKU,
		&p.Stock, &p.Published, &p.CreatedAt,
	)
	return p, err
}
