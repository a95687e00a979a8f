package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
)

const (
	getBasketSQL = `SELECT id, owner_id, status, created_at
		FROM baskets WHERE id = $1`

	getOpenBasketByOwnerSQL = `SELECT id, owner_id, status, created_at
		FROM baskets WHERE owner_id = $1 AND status = 'open'
		ORDER BY created_at DESC LIMIT 1`

	getBasketLinesSQL = `SELECT product_id, title, quantity, unit_price, requires_shipping
		FROM basket_lines WHERE basket_id = $1 ORDER BY product_id`

	createBasketSQL = `INSERT INTO baskets (id, owner_id, status, created_at)
		VALUES ($1, $2, $3, $4)`

	insertBasketLineSQL = `INSERT INTO basket_lines
		(basket_id, product_id, title, quantity, unit_price, requires_shipping)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateBasketStatusSQL = `UPDATE baskets SET status = $2 WHERE id = $1`

	deleteBasketLinesSQL = `DELETE FROM basket_lines WHERE basket_id = $1`
)

var _ basket.Repository = (*BasketRepository)(nil)

// BasketRepository implements basket.Repository backed by PostgreSQL.
type BasketRepository struct {
	pool *pgxpool.Pool
}

// NewBasketRepository returns a BasketRepository that uses the given pool.
func NewBasketRepository(pool *pgxpool.Pool) *BasketRepository {
	return &BasketRepository{pool: pool}
}

// GetByID loads a basket with its lines.
func (r *BasketRepository) GetByID(ctx context.Context, id string) (*basket.Basket, error) {
	b, err := r.getBasket(ctx, getBasketSQL, id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetOpenByOwner returns the owner's newest open basket, or ErrNotFound.
func (r *BasketRepository) GetOpenByOwner(ctx context.Context, ownerID string) (*basket.Basket, error) {
	return r.getBasket(ctx, getOpenBasketByOwnerSQL, ownerID)
}

func (r *BasketRepository) getBasket(ctx context.Context, query, arg string) (*basket.Basket, error) {
	var b basket.Basket
	err := r.pool.QueryRow(ctx, query, arg).Scan(&b.ID, &b.OwnerID, &b.Status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, basket.ErrNotFound
		}
		return nil, fmt.Errorf("getting basket: %w", err)
	}

	rows, err := r.pool.Query(ctx, getBasketLinesSQL, b.ID)
	if err != nil {
		return nil, fmt.Errorf("getting basket lines: %w", err)
	}
	b.Lines, err = pgx.CollectRows(rows, scanBasketLine)
	if err != nil {
		return nil, fmt.Errorf("scanning basket lines: %w", err)
	}
	return &b, nil
}

// Create persists the basket and its lines atomically.
func (r *BasketRepository) Create(ctx context.Context, b *basket.Basket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createBasketSQL, b.ID, b.OwnerID, b.Status, b.CreatedAt); err != nil {
		return fmt.Errorf("creating basket %q: %w", b.ID, err)
	}
	for _, l := range b.Lines {
		if _, err := tx.Exec(ctx, insertBasketLineSQL,
			b.ID, l.ProductID, l.Title, l.Quantity, l.UnitPrice, l.RequiresShipping,
		); err != nil {
			return fmt.Errorf("creating basket line %q: %w", l.ProductID, err)
		}
	}
	return tx.Commit(ctx)
}

// UpdateStatus persists a lifecycle transition.
func (r *BasketRepository) UpdateStatus(ctx context.Context, id string, status basket.Status) error {
	tag, err := r.pool.Exec(ctx, updateBasketStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating basket %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return basket.ErrNotFound
	}
	return nil
}

// ReplaceLines swaps the basket's line set for the given one atomically.
func (r *BasketRepository) ReplaceLines(ctx context.Context, id string, lines []basket.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteBasketLinesSQL, id); err != nil {
		return fmt.Errorf("clearing basket lines: %w", err)
	}
	for _, l := range lines {
		if _, err := tx.Exec(ctx, insertBasketLineSQL,
			id, l.ProductID, l.Title, l.Quantity, l.UnitPrice, l.RequiresShipping,
		); err != nil {
			return fmt.Errorf("writing basket line %q: %w", l.ProductID, err)
		}
	}
	return tx.Commit(ctx)
}

func scanBasketLine(row pgx.CollectableRow) (basket.Line, error) {
	var l basket.Line
	err := row.Scan(&l.ProductID, &l.Title, &l.Quantity, &l.UnitPrice, &l.RequiresShipping)
	return l, err
}
