package offer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

type mockRangeRepo struct {
	records map[string]Record
	err     error
}

func newMockRangeRepo() *mockRangeRepo {
	return &mockRangeRepo{records: make(map[string]Record)}
}

func (m *mockRangeRepo) Upsert(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records[rec.Name] = rec
	return nil
}

func titleRange(name, prefix string) *AttributeRange {
	return &AttributeRange{
		RangeName: name,
		Predicate: func(p product.Product) bool {
			return strings.HasPrefix(p.Title, prefix)
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	repo := newMockRangeRepo()
	reg := NewRegistry(repo)

	require.NoError(t, reg.Register(context.Background(), titleRange("Custom range", "A")))

	rng, err := reg.Lookup("Custom range")
	require.NoError(t, err)

	assert.True(t, rng.ContainsProduct(product.Product{ID: "p1", Title: "A tale"}))
	assert.False(t, rng.ContainsProduct(product.Product{ID: "p2", Title: "B tale"}))

	_, bounded := rng.Cardinality()
	assert.False(t, bounded)
}

func TestRegisterTwiceIsIdempotent(t *testing.T) {
	repo := newMockRangeRepo()
	reg := NewRegistry(repo)

	require.NoError(t, reg.Register(context.Background(), titleRange("Custom range", "A")))
	require.NoError(t, reg.Register(context.Background(), titleRange("Custom range", "A")))
	assert.Len(t, repo.records, 1)
}

func TestRegisterRejectsNonPlainNames(t *testing.T) {
	reg := NewRegistry(newMockRangeRepo())

	for _, name := range []string{"", "tab\tname", "multi\nline", " padded "} {
		err := reg.Register(context.Background(), titleRange(name, "A"))
		assert.ErrorIs(t, err, ErrInvalidRangeName, "name %q", name)
	}
}

func TestLookupUnknown(t *testing.T) {
	reg := NewRegistry(newMockRangeRepo())
	_, err := reg.Lookup("nope")
	assert.ErrorIs(t, err, ErrRangeNotFound)
}

func TestIDSetRange(t *testing.T) {
	rng := NewIDSetRange("Summer picks", []string{"p1", "p2", "p3"})

	assert.True(t, rng.ContainsProduct(product.Product{ID: "p2"}))
	assert.False(t, rng.ContainsProduct(product.Product{ID: "p9"}))

	n, bounded := rng.Cardinality()
	assert.True(t, bounded)
	assert.Equal(t, 3, n)
}

func TestIDSetRangeEmpty(t *testing.T) {
	rng := NewIDSetRange("Empty", nil)

	assert.False(t, rng.ContainsProduct(product.Product{ID: "p1"}))
	n, bounded := rng.Cardinality()
	assert.True(t, bounded)
	assert.Equal(t, 0, n)
}
