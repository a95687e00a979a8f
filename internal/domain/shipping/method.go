// Package shipping provides pluggable shipping charge strategies.
package shipping

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
)

// ErrMethodNotFound is returned when no shipping method matches a code.
var ErrMethodNotFound = errors.New("shipping method not found")

// Method computes the shipping charge for a basket. Implementations must be
// bound to a basket with BindBasket before any charge query; querying an
// unbound method is a programming error and panics.
type Method interface {
	Code() string
	Name() string
	Description() string
	BindBasket(b *basket.Basket)
	ChargeInclTax() decimal.Decimal
	ChargeExclTax() decimal.Decimal
}

// Repository lists the shipping methods configured for the store.
type Repository interface {
	List(ctx context.Context) ([]Method, error)
	GetByCode(ctx context.Context, code string) (Method, error)
}

// Slugify derives a method code from its display name: lower-cased with
// whitespace runs collapsed to single hyphens.
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
