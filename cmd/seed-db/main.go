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

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/averix/storefront-checkout/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	Discount int             `json:"discount"`
	Stock    int             `json:"stock"`
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, slug, image, regular_price, discount, stock, sold_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, slug = EXCLUDED.slug, image = EXCLUDED.image,
			regular_price = EXCLUDED.regular_price, discount = EXCLUDED.discount,
			stock = EXCLUDED.stock, active = TRUE`

	upsertCouponSQL = `INSERT INTO coupons
		(code, title, discount_type, value, min_order_amount, usage_limit_total, usage_limit_per_user, used_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			title = EXCLUDED.title, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, min_order_amount = EXCLUDED.min_order_amount,
			usage_limit_total = EXCLUDED.usage_limit_total,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user, active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id, name = EXCLUDED.name, active = TRUE`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`

	insertCartSQL = `INSERT INTO carts (user_id) VALUES ($1)`

	insertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, name, slug, image, price, quantity, position)
		SELECT $1, id, name, slug, image, regular_price, $3, $4 FROM products WHERE id = $2`
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		demoUser     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.StringVar(&demoUser, "demo-user", "demo-user", "user ID the seeded API key and cart belong to")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper, demoUser); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper, demoUser string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper, demoUser); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	if err := seedDemoCart(ctx, pool, demoUser); err != nil {
		return errors.Wrap(err, "seed demo cart")
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

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Slug, p.Image, p.Price, p.Discount, p.Stock)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

type couponSeed struct {
	code         string
	title        string
	discountType string
	value        string
	minOrder     *string
	limitTotal   *int
	limitPerUser int
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding coupons")

	minOrder := "15.00"
	flashCap := 100
	coupons := []couponSeed{
		{code: "WELCOME10", title: "Welcome: 10% off", discountType: "percent", value: "10", minOrder: &minOrder, limitPerUser: 1},
		{code: "SAVE5", title: "$5 off your order", discountType: "fixed", value: "5", limitPerUser: 3},
		{code: "FLASH50", title: "Flash sale: 50% off", discountType: "percent", value: "50", limitTotal: &flashCap, limitPerUser: 1},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.title, c.discountType, decimal.RequireFromString(c.value),
			c.minOrder, c.limitTotal, c.limitPerUser)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("title", c.title))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper, userID string) error {
	slog.Info("seeding default API key", slog.String("user", userID))

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, "default", keyHash, userID, "Default test key"); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	return nil
}

func seedDemoCart(ctx context.Context, pool *pgxpool.Pool, userID string) error {
	slog.Info("seeding demo cart", slog.String("user", userID))

	// Recreate from scratch so repeated seeds do not stack cart lines.
	if _, err := pool.Exec(ctx, deleteCartSQL, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	if _, err := pool.Exec(ctx, insertCartSQL, userID); err != nil {
		return errors.Wrap(err, "insert cart")
	}
	if _, err := pool.Exec(ctx, insertCartItemSQL, userID, "espresso-classic", 2, 0); err != nil {
		return errors.Wrap(err, "insert cart item")
	}

	return nil
}
