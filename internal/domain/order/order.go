// Package order models the placed-order aggregate and its append-only
// shipping and payment event ledger.
//
// An order's monetary totals are fixed at creation and never recomputed.
// All fulfillment and payment progress is recorded as immutable events with
// per-line quantities; order- and line-level status is derived by aggregation
// and never stored.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// StatusPending is the initial status given to orders unless the caller
// overrides it at placement time.
const StatusPending = "pending"

// Order is the aggregate representing a placed purchase.
type Order struct {
	Number string
	// UserID is empty for guest checkouts.
	UserID     string
	GuestEmail string

	TotalInclTax decimal.Decimal
	TotalExclTax decimal.Decimal

	ShippingAddressID string
	BillingAddressID  string
	ShippingMethod    string

	// Status is free-text and mutable, unlike the derived shipping status.
	Status    string
	CreatedAt time.Time

	Lines []Line
}

// Line is a single product entry of an order.
type Line struct {
	ID        string
	ProductID string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// UnableToPlaceOrderError reports that an order could not be placed:
// duplicate order number, missing shipping address, or an already-submitted
// basket. It is surfaced to the caller and never retried internally.
type UnableToPlaceOrderError struct {
	Number string
	Reason string
	// Err is the underlying cause, when one exists; it stays reachable
	// through errors.Is/As.
	Err error
}

func (e *UnableToPlaceOrderError) Error() string {
	if e.Number == "" {
		return fmt.Sprintf("unable to place order: %s", e.Reason)
	}
	return fmt.Sprintf("unable to place order %s: %s", e.Number, e.Reason)
}

func (e *UnableToPlaceOrderError) Unwrap() error { return e.Err }

// InvalidEventQuantityError reports an event recording that would overshoot a
// line's quantity or violate monotonic fulfillment progress.
type InvalidEventQuantityError struct {
	LineID    string
	Requested int
	Remaining int
}

func (e *InvalidEventQuantityError) Error() string {
	return fmt.Sprintf("invalid event quantity %d for line %s: %d items remaining",
		e.Requested, e.LineID, e.Remaining)
}

// EventType names a logical fulfillment or payment stage. Sequence orders
// stages by progress: a later stage can never cover more items than an
// earlier one.
type EventType struct {
	Code     string
	Name     string
	Sequence int
}

// EventQuantity binds an event to an order line with an item count.
type EventQuantity struct {
	LineID   string
	Quantity int
}

// ShippingEvent records a fulfillment action against one or more lines.
// Events are immutable once written.
type ShippingEvent struct {
	ID          string
	OrderNumber string
	TypeCode    string
	CreatedAt   time.Time
	Quantities  []EventQuantity
}

// PaymentEvent records a payment action (authorise, settle, refund) against
// an order, optionally with a gateway reference.
type PaymentEvent struct {
	ID          string
	OrderNumber string
	TypeCode    string
	Amount      decimal.Decimal
	Reference   string
	CreatedAt   time.Time
	Quantities  []EventQuantity
}

// PaymentSource describes where the money for an order came from, e.g. a
// card partially debited at placement.
type PaymentSource struct {
	ID              string
	OrderNumber     string
	Type            string
	AmountAllocated decimal.Decimal
	AmountDebited   decimal.Decimal
	Reference       string
}

// Repository defines persistence for orders and their event ledger.
type Repository interface {
	// Create persists the order and its lines atomically. A duplicate order
	// number fails with *UnableToPlaceOrderError and leaves nothing behind.
	Create(ctx context.Context, o *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)

	// RecordShippingEvent validates the requested quantities against the
	// line coverage already recorded (serialized per order) and appends the
	// event. Requested quantities of zero are normalized per
	// ValidateEventQuantities.
	RecordShippingEvent(ctx context.Context, orderNumber, typeCode string, requested map[string]int) (*ShippingEvent, error)
	RecordPaymentEvent(ctx context.Context, ev *PaymentEvent) error
	CreatePaymentSource(ctx context.Context, src *PaymentSource) error

	ShippingEvents(ctx context.Context, orderNumber string) ([]ShippingEvent, error)
	ShippingEventTypes(ctx context.Context) ([]EventType, error)
	GetShippingEventType(ctx context.Context, code string) (*EventType, error)
}
