// Package checkout orchestrates order placement: session state, address and
// shipping method resolution, order creation, payment record attachment and
// post-placement handling.
package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/address"
)

// ErrSessionNotFound is returned when no checkout session exists for a key.
var ErrSessionNotFound = errors.New("checkout session not found")

// Session holds the transient state of one checkout attempt. It is stored
// server-side keyed by the visitor and consumed by order placement.
type Session struct {
	// ShippingFields holds a freshly entered shipping address.
	ShippingFields *address.ShippingAddress
	// UserAddressID references a saved address book entry instead.
	UserAddressID string

	ShippingMethodCode string
	GuestEmail         string

	// SubmittedBasketID remembers the frozen basket across the payment
	// round-trip so it can be thawed if payment fails.
	SubmittedBasketID string

	// PlacedOrderNumber lets the confirmation page load the order after the
	// rest of the session has been flushed.
	PlacedOrderNumber string
}

// Flush clears the checkout state, keeping only the placed order reference.
func (s *Session) Flush() {
	*s = Session{PlacedOrderNumber: s.PlacedOrderNumber}
}

// AddressSource converts the session's address data into a resolver source.
func (s *Session) AddressSource(userID string) address.Source {
	return address.Source{
		Fields:        s.ShippingFields,
		UserAddressID: s.UserAddressID,
		UserID:        userID,
	}
}

// SessionStore persists checkout sessions keyed by visitor ID.
type SessionStore interface {
	// Get returns the session for the key, or ErrSessionNotFound.
	Get(ctx context.Context, key string) (*Session, error)
	Put(ctx context.Context, key string, s *Session) error
}
