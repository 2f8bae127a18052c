package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tipdoor/tipdoor/internal/domain/promotion"
)

const (
	promotionColumns = `id, vendor_id, title, description, promo_code,
		discount_type, discount_value, start_date, end_date, is_active, created_at`

	findActivePromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE promo_code = $1 AND is_active = TRUE
		AND start_date <= $2 AND end_date >= $2`

	promotionProductsSQL = `SELECT promotion_id, product_id FROM promotion_products
		WHERE promotion_id = ANY($1) ORDER BY product_id`

	insertPromotionSQL = `INSERT INTO promotions
		(id, vendor_id, title, description, promo_code, discount_type, discount_value,
		 start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertPromotionProductSQL = `INSERT INTO promotion_products (promotion_id, product_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	listVendorPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE vendor_id = $1 ORDER BY created_at DESC`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindActiveByCode looks up a promotion by exact code that is active at
// now, window bounds inclusive. Returns promotion.ErrNotFound for a
// mistyped, expired, or deactivated code alike.
func (r *PromotionRepository) FindActiveByCode(ctx context.Context, code string, now time.Time) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, findActivePromotionSQL, code, now)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	if err := r.loadApplicableProducts(ctx, []*promotion.Promotion{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts the promotion and its applicable-products set in one
// transaction.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, insertPromotionSQL,
		p.ID, p.VendorID, p.Title, p.Description, p.Code,
		string(p.DiscountType), p.DiscountValue, p.StartDate, p.EndDate, p.Active,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.ID, err)
	}

	for _, productID := range p.ApplicableProducts {
		if _, err := tx.Exec(ctx, insertPromotionProductSQL, p.ID, productID); err != nil {
			return fmt.Errorf("linking promotion %q to product %q: %w", p.ID, productID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing promotion %q: %w", p.ID, err)
	}
	return nil
}

// ListByVendor returns the vendor's promotions, newest first, with their
// applicable-products sets populated.
func (r *PromotionRepository) ListByVendor(ctx context.Context, vendorID string) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listVendorPromotionsSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing promotions for vendor %q: %w", vendorID, err)
	}

	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing promotions for vendor %q: %w", vendorID, err)
	}

	refs := make([]*promotion.Promotion, len(promos))
	for i := range promos {
		refs[i] = &promos[i]
	}
	if err := r.loadApplicableProducts(ctx, refs); err != nil {
		return nil, err
	}
	return promos, nil
}

// loadApplicableProducts fills the ApplicableProducts of every given
// promotion with a single query.
func (r *PromotionRepository) loadApplicableProducts(ctx context.Context, promos []*promotion.Promotion) error {
	if len(promos) == 0 {
		return nil
	}

	ids := make([]string, len(promos))
	byID := make(map[string]*promotion.Promotion, len(promos))
	for i, p := range promos {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.pool.Query(ctx, promotionProductsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading applicable products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var promoID, productID string
		if err := rows.Scan(&promoID, &productID); err != nil {
			return fmt.Errorf("scanning applicable product: %w", err)
		}
		if p, ok := byID[promoID]; ok {
			p.ApplicableProducts = append(p.ApplicableProducts, productID)
		}
	}
	return rows.Err()
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		discountType string
	)
	err := row.Scan(
		&p.ID, &p.VendorID, &p.Title, &p.Description, &p.Code,
		&discountType, &p.DiscountValue, &p.StartDate, &p.EndDate,
		&p.Active, &p.CreatedAt,
	)
	p.DiscountType = promotion.DiscountType(discountType)
	return p, err
}
