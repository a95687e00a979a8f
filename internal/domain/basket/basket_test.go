package basket

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLine(productID string, qty int, price string) Line {
	return Line{
		ProductID:        productID,
		Title:            productID,
		Quantity:         qty,
		UnitPrice:        decimal.RequireFromString(price),
		RequiresShipping: true,
	}
}

func TestNewBasket(t *testing.T) {
	b := &Basket{ID: "b1", Status: StatusOpen}

	assert.Equal(t, 0, b.NumLines())
	assert.Equal(t, 0, b.NumItems())
	assert.True(t, b.IsEmpty())
	assert.False(t, b.IsSubmitted())
	assert.True(t, b.CanBeEdited())
	assert.False(t, b.RequiresShipping())
}

func TestBasketCounts(t *testing.T) {
	b := &Basket{
		ID:     "b1",
		Status: StatusOpen,
		Lines: []Line{
			newLine("p1", 2, "10.00"),
			newLine("p2", 3, "5.50"),
		},
	}

	assert.Equal(t, 2, b.NumLines())
	assert.Equal(t, 5, b.NumItems())
	assert.True(t, b.RequiresShipping())
	assert.True(t, decimal.RequireFromString("36.50").Equal(b.Total()))
}

func TestFreezeThawSubmit(t *testing.T) {
	b := &Basket{ID: "b1", Status: StatusOpen}

	require.NoError(t, b.Freeze())
	assert.Equal(t, StatusFrozen, b.Status)
	assert.False(t, b.CanBeEdited())

	require.NoError(t, b.Thaw())
	assert.Equal(t, StatusOpen, b.Status)

	require.NoError(t, b.Submit())
	assert.True(t, b.IsSubmitted())

	// Submitted is terminal.
	assert.ErrorIs(t, b.Freeze(), ErrAlreadySubmitted)
	assert.ErrorIs(t, b.Submit(), ErrAlreadySubmitted)
}

func TestThawRequiresFrozen(t *testing.T) {
	b := &Basket{ID: "b1", Status: StatusOpen}
	assert.ErrorIs(t, b.Thaw(), ErrNotFrozen)
}

func TestMergeCombinesQuantities(t *testing.T) {
	frozen := &Basket{
		ID:     "old",
		Status: StatusFrozen,
		Lines:  []Line{newLine("p1", 2, "10.00")},
	}
	newer := &Basket{
		ID:     "new",
		Status: StatusOpen,
		Lines: []Line{
			newLine("p1", 1, "10.00"),
			newLine("p2", 4, "3.00"),
		},
	}

	require.NoError(t, frozen.Thaw())
	require.NoError(t, frozen.Merge(newer))

	assert.Equal(t, 2, frozen.NumLines())
	assert.Equal(t, 7, frozen.NumItems())
	assert.Equal(t, StatusMerged, newer.Status)
	assert.Empty(t, newer.Lines)
}

func TestMergeIntoFrozenFails(t *testing.T) {
	frozen := &Basket{ID: "old", Status: StatusFrozen}
	newer := &Basket{ID: "new", Status: StatusOpen}

	require.Error(t, frozen.Merge(newer))
}
