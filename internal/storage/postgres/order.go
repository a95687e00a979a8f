package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/report"
)

const (
	createOrderSQL = `INSERT INTO orders
		(number, user_id, guest_email, total_incl_tax, total_excl_tax,
		 shipping_address_id, billing_address_id, shipping_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderLineSQL = `INSERT INTO order_lines
		(id, order_number, product_id, title, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `number, user_id, guest_email, total_incl_tax, total_excl_tax,
		shipping_address_id, billing_address_id, shipping_method, status, created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	lockOrderSQL = `SELECT number FROM orders WHERE number = $1 FOR UPDATE`

	getOrderLinesSQL = `SELECT id, product_id, title, quantity, unit_price
		FROM order_lines WHERE order_number = $1 ORDER BY id`

	listOrdersBetweenSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at`

	getShippingEventsSQL = `SELECT id, order_number, type_code, created_at
		FROM shipping_events WHERE order_number = $1 ORDER BY created_at, id`

	getEventQuantitiesSQL = `SELECT line_id, quantity
		FROM shipping_event_quantities WHERE event_id = $1 ORDER BY line_id`

	insertShippingEventSQL = `INSERT INTO shipping_events
		(id, order_number, type_code, created_at) VALUES ($1, $2, $3, $4)`

	insertShippingEventQuantitySQL = `INSERT INTO shipping_event_quantities
		(event_id, line_id, quantity) VALUES ($1, $2, $3)`

	insertPaymentEventSQL = `INSERT INTO payment_events
		(id, order_number, type_code, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertPaymentEventQuantitySQL = `INSERT INTO payment_event_quantities
		(event_id, line_id, quantity) VALUES ($1, $2, $3)`

	createPaymentSourceSQL = `INSERT INTO payment_sources
		(id, order_number, source_type, amount_allocated, amount_debited, reference)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listEventTypesSQL = `SELECT code, name, sequence_number
		FROM shipping_event_types ORDER BY sequence_number`

	getEventTypeSQL = `SELECT code, name, sequence_number
		FROM shipping_event_types WHERE code = $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ report.OrderSource = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its lines atomically. A duplicate order
// number fails with *UnableToPlaceOrderError and leaves nothing behind.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, createOrderSQL,
		o.Number, o.UserID, o.GuestEmail, o.TotalInclTax, o.TotalExclTax,
		o.ShippingAddressID, o.BillingAddressID, o.ShippingMethod, o.Status, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &order.UnableToPlaceOrderError{
				Number: o.Number,
				Reason: "order number already taken",
				Err:    err,
			}
		}
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, insertOrderLineSQL,
			l.ID, o.Number, l.ProductID, l.Title, l.Quantity, l.UnitPrice,
		); err != nil {
			return fmt.Errorf("creating order line %q: %w", l.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByNumber loads an order with its lines, or ErrNotFound.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	o.Lines, err = r.orderLines(ctx, r.pool, number)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RecordShippingEvent validates the requested quantities against the
// coverage already on record and appends the event. The order row is locked
// for the duration of the transaction, so concurrent recordings for the same
// order serialize and each one validates against committed state.
func (r *OrderRepository) RecordShippingEvent(
	ctx context.Context, orderNumber, typeCode string, requested map[string]int,
) (*order.ShippingEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err := tx.QueryRow(ctx, lockOrderSQL, orderNumber).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", orderNumber, err)
	}

	lines, err := r.orderLines(ctx, tx, orderNumber)
	if err != nil {
		return nil, err
	}
	types, err := r.eventTypes(ctx, tx)
	if err != nil {
		return nil, err
	}
	events, err := r.shippingEvents(ctx, tx, orderNumber)
	if err != nil {
		return nil, err
	}

	quantities, err := order.ValidateEventQuantities(
		lines, types, order.CoverageOf(events), typeCode, requested,
	)
	if err != nil {
		return nil, err
	}

	ev := &order.ShippingEvent{
		ID:          uuid.New().String(),
		OrderNumber: orderNumber,
		TypeCode:    typeCode,
		CreatedAt:   time.Now().UTC(),
		Quantities:  quantities,
	}
	if _, err := tx.Exec(ctx, insertShippingEventSQL,
		ev.ID, ev.OrderNumber, ev.TypeCode, ev.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("creating shipping event: %w", err)
	}
	for _, q := range quantities {
		if _, err := tx.Exec(ctx, insertShippingEventQuantitySQL,
			ev.ID, q.LineID, q.Quantity,
		); err != nil {
			return nil, fmt.Errorf("creating event quantity for line %q: %w", q.LineID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing shipping event: %w", err)
	}
	return ev, nil
}

// RecordPaymentEvent appends a payment event with its line quantities.
func (r *OrderRepository) RecordPaymentEvent(ctx context.Context, ev *order.PaymentEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertPaymentEventSQL,
		ev.ID, ev.OrderNumber, ev.TypeCode, ev.Amount, ev.Reference, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("creating payment event: %w", err)
	}
	for _, q := range ev.Quantities {
		if _, err := tx.Exec(ctx, insertPaymentEventQuantitySQL,
			ev.ID, q.LineID, q.Quantity,
		); err != nil {
			return fmt.Errorf("creating payment quantity for line %q: %w", q.LineID, err)
		}
	}
	return tx.Commit(ctx)
}

// CreatePaymentSource records where the money for an order came from.
func (r *OrderRepository) CreatePaymentSource(ctx context.Context, src *order.PaymentSource) error {
	_, err := r.pool.Exec(ctx, createPaymentSourceSQL,
		src.ID, src.OrderNumber, src.Type, src.AmountAllocated, src.AmountDebited, src.Reference,
	)
	if err != nil {
		return fmt.Errorf("creating payment source: %w", err)
	}
	return nil
}

// ShippingEvents returns the order's recorded events, oldest first.
func (r *OrderRepository) ShippingEvents(ctx context.Context, orderNumber string) ([]order.ShippingEvent, error) {
	return r.shippingEvents(ctx, r.pool, orderNumber)
}

// ShippingEventTypes returns all configured event types ordered by stage.
func (r *OrderRepository) ShippingEventTypes(ctx context.Context) ([]order.EventType, error) {
	return r.eventTypes(ctx, r.pool)
}

// GetShippingEventType returns the type with the given code, or
// ErrUnknownEventType.
func (r *OrderRepository) GetShippingEventType(ctx context.Context, code string) (*order.EventType, error) {
	var et order.EventType
	err := r.pool.QueryRow(ctx, getEventTypeSQL, code).Scan(&et.Code, &et.Name, &et.Sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(order.ErrUnknownEventType, code)
		}
		return nil, fmt.Errorf("getting event type %q: %w", code, err)
	}
	return &et, nil
}

// OrdersPlacedBetween returns the orders matching the report parameters in
// placement order, lines included.
func (r *OrderRepository) OrdersPlacedBetween(ctx context.Context, p report.Params) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersBetweenSQL, p.From, p.Until, p.Status)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	for i := range orders {
		orders[i].Lines, err = r.orderLines(ctx, r.pool, orders[i].Number)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepository) orderLines(ctx context.Context, q querier, orderNumber string) ([]order.Line, error) {
	rows, err := q.Query(ctx, getOrderLinesSQL, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("getting order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("scanning order lines: %w", err)
	}
	return lines, nil
}

func (r *OrderRepository) eventTypes(ctx context.Context, q querier) ([]order.EventType, error) {
	rows, err := q.Query(ctx, listEventTypesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing event types: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.EventType, error) {
		var et order.EventType
		err := row.Scan(&et.Code, &et.Name, &et.Sequence)
		return et, err
	})
}

func (r *OrderRepository) shippingEvents(ctx context.Context, q querier, orderNumber string) ([]order.ShippingEvent, error) {
	rows, err := q.Query(ctx, getShippingEventsSQL, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("getting shipping events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.ShippingEvent, error) {
		var ev order.ShippingEvent
		err := row.Scan(&ev.ID, &ev.OrderNumber, &ev.TypeCode, &ev.CreatedAt)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning shipping events: %w", err)
	}

	for i := range events {
		qrows, err := q.Query(ctx, getEventQuantitiesSQL, events[i].ID)
		if err != nil {
			return nil, fmt.Errorf("getting event quantities: %w", err)
		}
		events[i].Quantities, err = pgx.CollectRows(qrows, func(row pgx.CollectableRow) (order.EventQuantity, error) {
			var eq order.EventQuantity
			err := row.Scan(&eq.LineID, &eq.Quantity)
			return eq, err
		})
		if err != nil {
			return nil, fmt.Errorf("scanning event quantities: %w", err)
		}
	}
	return events, nil
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.ProductID, &l.Title, &l.Quantity, &l.UnitPrice)
	return l, err
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.Number, &o.UserID, &o.GuestEmail, &o.TotalInclTax, &o.TotalExclTax,
		&o.ShippingAddressID, &o.BillingAddressID, &o.ShippingMethod, &o.Status, &o.CreatedAt,
	)
	return o, err
}
