package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

const (
	listShippingMethodsSQL = `SELECT code, name, description, price_per_order, price_per_item
		FROM shipping_methods ORDER BY code`

	getShippingMethodSQL = `SELECT code, name, description, price_per_order, price_per_item
		FROM shipping_methods WHERE code = $1`
)

var _ shipping.Repository = (*ShippingMethodRepository)(nil)

// ShippingMethodRepository implements shipping.Repository backed by
// PostgreSQL. Every stored method is a fixed-price method; the free method
// for digital baskets is chosen in code and never persisted.
type ShippingMethodRepository struct {
	pool *pgxpool.Pool
}

// NewShippingMethodRepository returns a ShippingMethodRepository that uses
// the given pool.
func NewShippingMethodRepository(pool *pgxpool.Pool) *ShippingMethodRepository {
	return &ShippingMethodRepository{pool: pool}
}

// List returns all configured shipping methods.
func (r *ShippingMethodRepository) List(ctx context.Context) ([]shipping.Method, error) {
	rows, err := r.pool.Query(ctx, listShippingMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping methods: %w", err)
	}
	fixed, err := pgx.CollectRows(rows, scanShippingMethod)
	if err != nil {
		return nil, fmt.Errorf("scanning shipping methods: %w", err)
	}

	methods := make([]shipping.Method, len(fixed))
	for i := range fixed {
		methods[i] = &fixed[i]
	}
	return methods, nil
}

// GetByCode returns the method with the given code, or ErrMethodNotFound.
func (r *ShippingMethodRepository) GetByCode(ctx context.Context, code string) (shipping.Method, error) {
	rows, err := r.pool.Query(ctx, getShippingMethodSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting shipping method %q: %w", code, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanShippingMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrMethodNotFound
		}
		return nil, fmt.Errorf("getting shipping method %q: %w", code, err)
	}
	return &m, nil
}

func scanShippingMethod(row pgx.CollectableRow) (shipping.FixedPrice, error) {
	var m shipping.FixedPrice
	err := row.Scan(&m.MethodCode, &m.MethodName, &m.MethodDesc, &m.PricePerOrder, &m.PricePerItem)
	return m, err
}
