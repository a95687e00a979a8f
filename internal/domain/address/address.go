// Package address holds per-order shipping address snapshots and the
// reusable, deduplicated user address book.
package address

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrMissingShippingAddress is returned when checkout state holds neither
	// raw address fields nor an address book reference.
	ErrMissingShippingAddress = errors.New("no shipping address data found")
	// ErrAddressNotFound is returned when a referenced address book entry no
	// longer exists.
	ErrAddressNotFound = errors.New("selected shipping address no longer exists")
)

// ShippingAddress is the address snapshot owned by an order. It is immutable
// once the order is placed.
type ShippingAddress struct {
	ID        string
	FirstName string
	LastName  string
	Line1     string
	Line2     string
	Line3     string
	City      string
	State     string
	Postcode  string
	// Country is an ISO 3166-1 alpha-2 code.
	Country string
	Phone   string
}

// Salutation returns the customer name with any empty components stripped.
func (a *ShippingAddress) Salutation() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{a.FirstName, a.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Summary returns a single-line rendering of the address.
func (a *ShippingAddress) Summary() string {
	fields := []string{
		a.Salutation(), a.Line1, a.Line2, a.Line3,
		a.City, a.State, a.Postcode, a.Country,
	}
	parts := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ", ")
}

// Hash returns a content hash over the salient, normalized address fields.
// Two addresses that differ only in case or surrounding whitespace hash
// identically, which is what drives address book deduplication.
func (a *ShippingAddress) Hash() string {
	fields := []string{
		a.FirstName, a.LastName, a.Line1, a.Line2, a.Line3,
		a.City, a.State, a.Postcode, a.Country,
	}
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = strings.ToUpper(strings.Join(strings.Fields(f), " "))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

// UserAddress is a reusable address book entry owned by a user. Entries are
// deduplicated by content hash; NumOrders counts how often the entry has been
// used, which drives ordering in the address book UI.
type UserAddress struct {
	ID        string
	UserID    string
	Address   ShippingAddress
	Hash      string
	NumOrders int
	CreatedAt time.Time
}

// ToShippingAddress converts the book entry into a fresh per-order snapshot.
func (u *UserAddress) ToShippingAddress() ShippingAddress {
	addr := u.Address
	addr.ID = ""
	return addr
}

// Repository defines persistence for shipping addresses and the address book.
type Repository interface {
	// CreateShippingAddress persists a per-order snapshot and fills in its ID.
	CreateShippingAddress(ctx context.Context, a *ShippingAddress) error

	// GetUserAddress returns a book entry by ID, or ErrAddressNotFound.
	GetUserAddress(ctx context.Context, id string) (*UserAddress, error)
	// FindUserAddressByHash returns the user's entry with the given content
	// hash, or ErrAddressNotFound.
	FindUserAddressByHash(ctx context.Context, userID, hash string) (*UserAddress, error)
	// ListUserAddresses returns the user's address book, most used first.
	ListUserAddresses(ctx context.Context, userID string) ([]UserAddress, error)
	CreateUserAddress(ctx context.Context, u *UserAddress) error
	// IncrementNumOrders bumps the reuse counter of a book entry.
	IncrementNumOrders(ctx context.Context, id string) error
	DeleteUserAddress(ctx context.Context, userID, id string) error
}
