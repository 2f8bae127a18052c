// Command seed-db loads development fixtures: a vendor, a customer, a
// delivery partner, a small product catalog, one promotion, and an API
// key for each actor. Everything is upserted, so reruns are safe.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tipdoor/tipdoor/internal/repository"
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	SKU   string          `json:"sku"`
	Stock int             `json:"stock"`
}

const (
	seedVendorID   = "vendor-dev"
	seedCustomerID = "customer-dev"
	seedPartnerID  = "partner-dev"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TIPDOOR_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TIPDOOR_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedActors(ctx, pool); err != nil {
		return errors.Wrap(err, "seed actors")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotion(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotion")
	}

	if err := seedAPIKeys(ctx, pool, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedActors(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding vendor, customer, and delivery partner")

	const upsertVendor = `
		INSERT INTO vendors (id, name, email, phone_number, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`
	if _, err := pool.Exec(ctx, upsertVendor,
		seedVendorID, "Dev Vendor", "vendor@example.com", "+10000000001", "1 Market St, Springfield",
	); err != nil {
		return errors.Wrap(err, "upsert vendor")
	}

	const upsertCustomer = `
		INSERT INTO customers (id, name, mobile_number, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, mobile_number = EXCLUDED.mobile_number`
	if _, err := pool.Exec(ctx, upsertCustomer,
		seedCustomerID, "Dev Customer", "+10000000002", "customer@example.com",
	); err != nil {
		return errors.Wrap(err, "upsert customer")
	}

	const upsertPartner = `
		INSERT INTO delivery_partners (id, name, phone, vehicle_type, is_available, service_area)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, service_area = EXCLUDED.service_area`
	if _, err := pool.Exec(ctx, upsertPartner,
		seedPartnerID, "Dev Partner", "+10000000003", "BIKE", true, "Springfield",
	); err != nil {
		return errors.Wrap(err, "upsert partner")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsertProduct = `
		INSERT INTO products (id, vendor_id, name, price, sku, stock, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			sku = EXCLUDED.sku, stock = EXCLUDED.stock`
	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProduct,
			p.ID, seedVendorID, p.Name, p.Price, p.SKU, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedPromotion(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promotion", slog.String("code", "SAVE10"))

	now := time.Now()

	const upsertPromotion = `
		INSERT INTO promotions
			(id, vendor_id, title, description, promo_code, discount_type, discount_value, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (id) DO UPDATE SET start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date`
	if _, err := pool.Exec(ctx, upsertPromotion,
		"promo-save10", seedVendorID,
		"Ten percent off", "10% off all dev vendor products",
		"SAVE10", "percentage", decimal.NewFromInt(10),
		now.Add(-24*time.Hour), now.Add(30*24*time.Hour),
	); err != nil {
		return errors.Wrap(err, "upsert promotion")
	}

	// A promotion only applies to products linked through
	// promotion_products, so cover the whole dev catalog.
	const linkProducts = `
		INSERT INTO promotion_products (promotion_id, product_id)
		SELECT $1, id FROM products WHERE vendor_id = $2
		ON CONFLICT DO NOTHING`
	if _, err := pool.Exec(ctx, linkProducts, "promo-save10", seedVendorID); err != nil {
		return errors.Wrap(err, "link promotion products")
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, pepper string) error {
	keys := []struct {
		id        string
		rawKey    string
		name      string
		actorType string
		actorID   string
	}{
		{"key-customer", "dev-customer-key", "Dev customer key", "customer", seedCustomerID},
		{"key-vendor", "dev-vendor-key", "Dev vendor key", "vendor", seedVendorID},
		{"key-partner", "dev-partner-key", "Dev partner key", "partner", seedPartnerID},
	}

	const upsertKey = `
		INSERT INTO api_keys (id, key_hash, name, actor_type, actor_id, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash`

	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(k.rawKey))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, upsertKey, k.id, keyHash, k.name, k.actorType, k.actorID); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.id)
		}

		slog.Info("upserted API key", slog.String("id", k.id), slog.String("actor", k.actorType))
	}

	return nil
}
