package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/notify"
)

const (
	getCommTypeSQL = `SELECT code, name, subject_template, body_template
		FROM communication_event_types WHERE code = $1`

	createCommEventSQL = `INSERT INTO communication_events
		(order_number, type_code, created_at) VALUES ($1, $2, $3)`
)

var _ notify.Repository = (*CommunicationRepository)(nil)

// CommunicationRepository implements notify.Repository backed by PostgreSQL.
type CommunicationRepository struct {
	pool *pgxpool.Pool
}

// NewCommunicationRepository returns a CommunicationRepository that uses the
// given pool.
func NewCommunicationRepository(pool *pgxpool.Pool) *CommunicationRepository {
	return &CommunicationRepository{pool: pool}
}

// GetEventType returns the message templates for a code, or ErrTypeNotFound.
func (r *CommunicationRepository) GetEventType(ctx context.Context, code string) (*notify.EventType, error) {
	var et notify.EventType
	err := r.pool.QueryRow(ctx, getCommTypeSQL, code).Scan(
		&et.Code, &et.Name, &et.SubjectTemplate, &et.BodyTemplate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notify.ErrTypeNotFound
		}
		return nil, fmt.Errorf("getting communication type %q: %w", code, err)
	}
	return &et, nil
}

// CreateEvent records that a message of a given type was sent for an order.
func (r *CommunicationRepository) CreateEvent(ctx context.Context, ev *notify.Event) error {
	_, err := r.pool.Exec(ctx, createCommEventSQL, ev.OrderNumber, ev.TypeCode, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording communication event: %w", err)
	}
	return nil
}
