// Package offer provides promotional product ranges: named predicates that
// decide which products are eligible for an offer.
package offer

import (
	"context"
	"sync"
	"unicode"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var (
	// ErrInvalidRangeName is returned when a range is registered with a name
	// that is not plain displayable text. The name is persisted as-is, so
	// anything needing deferred rendering cannot be accepted.
	ErrInvalidRangeName = errors.New("range name must be plain text")
	// ErrRangeNotFound is returned when looking up an unregistered range.
	ErrRangeNotFound = errors.New("range not found")
)

// Range decides whether a product belongs to a named promotional set.
type Range interface {
	// Name is the plain-text display name; it doubles as the unique key.
	Name() string
	ContainsProduct(p product.Product) bool
	// Cardinality returns the number of member products and true, or
	// (0, false) when the range is unbounded.
	Cardinality() (int, bool)
}

// Record is the persisted form of a registered range.
type Record struct {
	Name        string
	Description string
}

// Repository persists range registrations.
type Repository interface {
	// Upsert writes the record, replacing any record with the same name.
	// Registering the same range twice is not an error.
	Upsert(ctx context.Context, rec Record) error
}

// Registry holds the registered ranges and keeps the persisted records in
// step with them.
type Registry struct {
	repo Repository

	mu     sync.RWMutex
	ranges map[string]Range
}

// NewRegistry creates a Registry backed by the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		ranges: make(map[string]Range),
	}
}

// Register validates the range name, persists its record and makes the range
// available for lookup. Re-registering a range with the same name replaces it.
func (r *Registry) Register(ctx context.Context, rng Range) error {
	name := rng.Name()
	if !isPlainText(name) {
		return errors.Wrapf(ErrInvalidRangeName, "%q", name)
	}
	if err := r.repo.Upsert(ctx, Record{Name: name}); err != nil {
		return errors.Wrap(err, "persist range")
	}

	r.mu.Lock()
	r.ranges[name] = rng
	r.mu.Unlock()
	return nil
}

// Lookup returns the registered range with the given name.
func (r *Registry) Lookup(name string) (Range, error) {
	r.mu.RLock()
	rng, ok := r.ranges[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrRangeNotFound, name)
	}
	return rng, nil
}

// isPlainText reports whether s is non-empty displayable text: printable
// runes only, with no leading or trailing space.
func isPlainText(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	if unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1]) {
		return false
	}
	for _, r := range runes {
		if r != ' ' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// AttributeRange selects products by an arbitrary predicate. Its membership
// cannot be counted, so its cardinality is unbounded.
type AttributeRange struct {
	RangeName string
	Predicate func(p product.Product) bool
}

var _ Range = (*AttributeRange)(nil)

func (r *AttributeRange) Name() string { return r.RangeName }

func (r *AttributeRange) ContainsProduct(p product.Product) bool {
	return r.Predicate(p)
}

func (r *AttributeRange) Cardinality() (int, bool) { return 0, false }
