package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
)

// FixedPrice is the standard shipping method: a charge per order plus a
// charge per item. Tax-inclusive and tax-exclusive charges are identical in
// this base implementation; a tax-aware variant would override ChargeExclTax.
type FixedPrice struct {
	MethodCode    string
	MethodName    string
	MethodDesc    string
	PricePerOrder decimal.Decimal
	PricePerItem  decimal.Decimal

	b *basket.Basket
}

var _ Method = (*FixedPrice)(nil)

func (m *FixedPrice) Code() string {
	if m.MethodCode == "" {
		return Slugify(m.MethodName)
	}
	return m.MethodCode
}

func (m *FixedPrice) Name() string        { return m.MethodName }
func (m *FixedPrice) Description() string { return m.MethodDesc }

// BindBasket attaches the basket whose contents drive the charge.
func (m *FixedPrice) BindBasket(b *basket.Basket) { m.b = b }

// ChargeInclTax returns price-per-order plus price-per-item times the total
// item count of the bound basket.
func (m *FixedPrice) ChargeInclTax() decimal.Decimal {
	if m.b == nil {
		panic("shipping: charge queried before BindBasket")
	}
	charge := m.PricePerOrder
	for _, l := range m.b.Lines {
		charge = charge.Add(m.PricePerItem.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return charge
}

func (m *FixedPrice) ChargeExclTax() decimal.Decimal {
	return m.ChargeInclTax()
}

// Free ships a basket at no charge; used when no line requires shipping.
type Free struct {
	b *basket.Basket
}

var _ Method = (*Free)(nil)

func (m *Free) Code() string                { return "free-shipping" }
func (m *Free) Name() string                { return "Free shipping" }
func (m *Free) Description() string         { return "No shipping required" }
func (m *Free) BindBasket(b *basket.Basket) { m.b = b }

func (m *Free) ChargeInclTax() decimal.Decimal {
	if m.b == nil {
		panic("shipping: charge queried before BindBasket")
	}
	return decimal.Zero
}
func (m *Free) ChargeExclTax() decimal.Decimal { return m.ChargeInclTax() }
