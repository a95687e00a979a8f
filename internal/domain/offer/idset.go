package offer

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const bloomFPR = 0.001

// IDSetRange selects products by an explicit member set. Membership checks
// go through a bloom filter first so that misses (the common case when a
// large catalog is matched against a narrow promotion) never touch the map.
type IDSetRange struct {
	RangeName string
	filter    *bloom.BloomFilter
	ids       map[string]struct{}
}

var _ Range = (*IDSetRange)(nil)

// NewIDSetRange builds a range containing exactly the given product IDs.
func NewIDSetRange(name string, productIDs []string) *IDSetRange {
	n := uint(len(productIDs))
	if n == 0 {
		n = 1
	}
	r := &IDSetRange{
		RangeName: name,
		filter:    bloom.NewWithEstimates(n, bloomFPR),
		ids:       make(map[string]struct{}, len(productIDs)),
	}
	for _, id := range productIDs {
		r.filter.AddString(id)
		r.ids[id] = struct{}{}
	}
	return r
}

func (r *IDSetRange) Name() string { return r.RangeName }

func (r *IDSetRange) ContainsProduct(p product.Product) bool {
	if !r.filter.TestString(p.ID) {
		return false
	}
	_, ok := r.ids[p.ID]
	return ok
}

func (r *IDSetRange) Cardinality() (int, bool) {
	return len(r.ids), true
}
