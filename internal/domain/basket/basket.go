// Package basket models the pre-order cart and its lifecycle.
//
// A basket is Open while the customer edits it, Frozen while payment is in
// flight, and Submitted once an order has been placed from it. Submitted is
// terminal. A frozen basket may be thawed back to Open when payment fails,
// and a newer basket created during the frozen interval can be merged into
// the thawed one.
package basket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the basket lifecycle states.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFrozen    Status = "frozen"
	StatusSubmitted Status = "submitted"
	// StatusMerged marks a basket whose lines were absorbed into another
	// basket; it is no longer usable.
	StatusMerged Status = "merged"
)

var (
	// ErrAlreadySubmitted is returned when an operation requires an
	// unsubmitted basket but the basket has already been converted to an order.
	ErrAlreadySubmitted = errors.New("basket already submitted")
	// ErrNotFrozen is returned when thawing a basket that is not frozen.
	ErrNotFrozen = errors.New("basket is not frozen")
	// ErrNotFound is returned when a requested basket does not exist.
	ErrNotFound = errors.New("basket not found")
)

// Line is a single product entry in a basket. UnitPrice is captured at the
// time the product was added.
type Line struct {
	ProductID        string
	Title            string
	Quantity         int
	UnitPrice        decimal.Decimal
	RequiresShipping bool
}

// Basket is the mutable pre-order cart.
type Basket struct {
	ID        string
	OwnerID   string // empty for anonymous visitors
	Status    Status
	Lines     []Line
	CreatedAt time.Time
}

// NumLines returns the number of distinct product lines.
func (b *Basket) NumLines() int {
	return len(b.Lines)
}

// NumItems returns the total item quantity across all lines.
func (b *Basket) NumItems() int {
	total := 0
	for _, l := range b.Lines {
		total += l.Quantity
	}
	return total
}

// IsEmpty reports whether the basket has no lines.
func (b *Basket) IsEmpty() bool {
	return len(b.Lines) == 0
}

// IsSubmitted reports whether the basket has been converted to an order.
func (b *Basket) IsSubmitted() bool {
	return b.Status == StatusSubmitted
}

// CanBeEdited reports whether lines may still be added or removed.
// Only open baskets are editable.
func (b *Basket) CanBeEdited() bool {
	return b.Status == StatusOpen
}

// RequiresShipping reports whether any line holds a physical product.
func (b *Basket) RequiresShipping() bool {
	for _, l := range b.Lines {
		if l.RequiresShipping {
			return true
		}
	}
	return false
}

// Total returns the sum of unit price times quantity across all lines.
func (b *Basket) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range b.Lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Freeze locks the basket for payment. Freezing a submitted basket fails.
func (b *Basket) Freeze() error {
	if b.Status == StatusSubmitted {
		return ErrAlreadySubmitted
	}
	b.Status = StatusFrozen
	return nil
}

// Thaw returns a frozen basket to the open state so it can be edited or
// resubmitted after a payment failure.
func (b *Basket) Thaw() error {
	if b.Status != StatusFrozen {
		return ErrNotFrozen
	}
	b.Status = StatusOpen
	return nil
}

// Submit marks the basket as converted to an order. This is terminal:
// a submitted basket can never be reopened.
func (b *Basket) Submit() error {
	if b.Status == StatusSubmitted {
		return ErrAlreadySubmitted
	}
	b.Status = StatusSubmitted
	return nil
}

// Merge absorbs the lines of other into b, combining quantities for lines
// that reference the same product. The other basket is marked merged and
// must not be used afterwards. b must be editable.
func (b *Basket) Merge(other *Basket) error {
	if !b.CanBeEdited() {
		return errors.Errorf("cannot merge into basket with status %q", b.Status)
	}
	byProduct := make(map[string]int, len(b.Lines))
	for i, l := range b.Lines {
		byProduct[l.ProductID] = i
	}
	for _, l := range other.Lines {
		if i, ok := byProduct[l.ProductID]; ok {
			b.Lines[i].Quantity += l.Quantity
			continue
		}
		b.Lines = append(b.Lines, l)
	}
	other.Lines = nil
	other.Status = StatusMerged
	return nil
}

// Repository defines persistence operations for baskets.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Basket, error)
	// GetOpenByOwner returns the owner's current open basket, or ErrNotFound.
	GetOpenByOwner(ctx context.Context, ownerID string) (*Basket, error)
	Create(ctx context.Context, b *Basket) error
	// UpdateStatus persists a lifecycle transition.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// ReplaceLines persists the merged line set of a basket.
	ReplaceLines(ctx context.Context, id string, lines []Line) error
}
