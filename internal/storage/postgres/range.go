package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/offer"
)

const upsertRangeSQL = `INSERT INTO ranges (name, description)
	VALUES ($1, $2)
	ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`

var _ offer.Repository = (*RangeRepository)(nil)

// RangeRepository persists promotional range registrations.
type RangeRepository struct {
	pool *pgxpool.Pool
}

// NewRangeRepository returns a RangeRepository that uses the given pool.
func NewRangeRepository(pool *pgxpool.Pool) *RangeRepository {
	return &RangeRepository{pool: pool}
}

// Upsert writes the record, replacing any record with the same name.
func (r *RangeRepository) Upsert(ctx context.Context, rec offer.Record) error {
	_, err := r.pool.Exec(ctx, upsertRangeSQL, rec.Name, rec.Description)
	if err != nil {
		return fmt.Errorf("upserting range %q: %w", rec.Name, err)
	}
	return nil
}
