package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// StockStatus describes product availability derived from the stock count.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StatusLowStock   StockStatus = "LOW_STOCK"
	StatusInStock    StockStatus = "IN_STOCK"
)

// lowStockThreshold is the stock count at or below which a product is
// reported as low on stock.
const lowStockThreshold = 5

// Product represents a catalog item offered by a vendor.
type Product struct {
	ID        string
	VendorID  string
	Name      string
	Price     decimal.Decimal
	SKU       string
	Stock     int
	Published bool
	CreatedAt time.Time
}

// Status derives the availability status from the stock count.
// Zero stock is out of stock, five or fewer is low stock.
func (p Product) Status() StockStatus {
	switch {
	case p.Stock == 0:
		return StatusOutOfStock
	case p.Stock <= lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Search(ctx context.Context, query string) ([]Product, error)
	LatestArrivals(ctx context.Context, limit int) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// OwnedByVendor reports whether every given product belongs to the vendor.
	OwnedByVendor(ctx context.Context, vendorID string, productIDs []string) (bool, error)
}
