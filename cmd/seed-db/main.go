// Command seed-db populates the database with catalogue products, shipping
// methods, fulfillment event types, communication templates and an admin API
// key. Every write is an upsert, so reruns are safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type productJSON struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category"`
	RequiresShipping *bool           `json:"requires_shipping"`
}

const (
	upsertProductSQL = `INSERT INTO products (id, title, price, category, requires_shipping)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    price = EXCLUDED.price,
    category = EXCLUDED.category,
    requires_shipping = EXCLUDED.requires_shipping`

	upsertShippingMethodSQL = `INSERT INTO shipping_methods (code, name, description, price_per_order, price_per_item)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price_per_order = EXCLUDED.price_per_order,
    price_per_item = EXCLUDED.price_per_item`

	upsertEventTypeSQL = `INSERT INTO shipping_event_types (code, name, sequence_number)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    sequence_number = EXCLUDED.sequence_number`

	upsertCommTypeSQL = `INSERT INTO communication_event_types (code, name, subject_template, body_template)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    subject_template = EXCLUDED.subject_template,
    body_template = EXCLUDED.body_template`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    name = EXCLUDED.name,
    scopes = EXCLUDED.scopes,
    active = EXCLUDED.active`
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
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

	if err := seedShippingMethods(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping methods")
	}

	if err := seedEventTypes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping event types")
	}

	if err := seedCommunicationTypes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed communication types")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
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
		requiresShipping := true
		if p.RequiresShipping != nil {
			requiresShipping = *p.RequiresShipping
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Title, p.Price, p.Category, requiresShipping,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("title", p.Title))
	}

	return nil
}

func seedShippingMethods(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding shipping methods")

	methods := []struct {
		code, name, description     string
		pricePerOrder, pricePerItem decimal.Decimal
	}{
		{
			code:          "standard",
			name:          "Standard shipping",
			description:   "Delivery within 3-5 business days",
			pricePerOrder: decimal.NewFromFloat(5.00),
			pricePerItem:  decimal.NewFromFloat(1.50),
		},
		{
			code:          "express",
			name:          "Express shipping",
			description:   "Next business day delivery",
			pricePerOrder: decimal.NewFromFloat(12.00),
			pricePerItem:  decimal.NewFromFloat(2.50),
		},
	}

	for _, m := range methods {
		if _, err := pool.Exec(ctx, upsertShippingMethodSQL,
			m.code, m.name, m.description, m.pricePerOrder, m.pricePerItem,
		); err != nil {
			return errors.Wrapf(err, "upsert shipping method %s", m.code)
		}

		slog.Info("upserted shipping method", slog.String("code", m.code))
	}

	return nil
}

func seedEventTypes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding shipping event types")

	types := []struct {
		code, name string
		sequence   int
	}{
		{code: "order_placed", name: "Order placed", sequence: 10},
		{code: "dispatched", name: "Dispatched", sequence: 20},
		{code: "delivered", name: "Delivered", sequence: 30},
	}

	for _, t := range types {
		if _, err := pool.Exec(ctx, upsertEventTypeSQL, t.code, t.name, t.sequence); err != nil {
			return errors.Wrapf(err, "upsert event type %s", t.code)
		}

		slog.Info("upserted shipping event type", slog.String("code", t.code), slog.Int("sequence", t.sequence))
	}

	return nil
}

func seedCommunicationTypes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding communication event types")

	subject := "Your order {{.Order.Number}} has been placed"
	body := `Hello,

Thank you for your order {{.Order.Number}}.
Order total: {{.Order.TotalInclTax.StringFixed 2}}

We will let you know once your items are on the way.`

	if _, err := pool.Exec(ctx, upsertCommTypeSQL,
		"ORDER_PLACED", "Order placed confirmation", subject, body,
	); err != nil {
		return errors.Wrap(err, "upsert ORDER_PLACED communication type")
	}

	slog.Info("upserted communication event type", slog.String("code", "ORDER_PLACED"))

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keyHash := handler.HashAPIKey(pepper, apiKey)

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default fulfillment key", []string{"record_shipping_event"}, true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default fulfillment key"))

	return nil
}
