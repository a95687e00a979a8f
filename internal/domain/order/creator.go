package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
)

// CreateArgs carries everything needed to write an order out.
type CreateArgs struct {
	Number string
	Basket *basket.Basket

	TotalInclTax decimal.Decimal
	TotalExclTax decimal.Decimal

	UserID     string
	GuestEmail string

	ShippingAddressID string
	BillingAddressID  string
	ShippingMethod    string

	// Status overrides the initial order status; empty selects StatusPending.
	Status string
}

// Creator writes order aggregates out of submitted baskets. The basket state
// transition itself is the caller's responsibility: the basket is submitted
// only after the order exists.
type Creator struct {
	repo Repository
	now  func() time.Time
}

// NewCreator creates a Creator backed by the given repository.
func NewCreator(repo Repository) *Creator {
	return &Creator{repo: repo, now: time.Now}
}

// Create validates the placement preconditions, builds the order from the
// basket lines and persists it atomically. A duplicate order number surfaces
// as *UnableToPlaceOrderError from the repository.
func (c *Creator) Create(ctx context.Context, args CreateArgs) (*Order, error) {
	if args.Number == "" {
		return nil, &UnableToPlaceOrderError{Reason: "order number is required"}
	}
	if args.Basket == nil || args.Basket.IsEmpty() {
		return nil, &UnableToPlaceOrderError{Number: args.Number, Reason: "basket is empty"}
	}
	if args.Basket.IsSubmitted() {
		return nil, &UnableToPlaceOrderError{Number: args.Number, Reason: "basket already submitted"}
	}
	if args.TotalInclTax.IsNegative() || args.TotalExclTax.IsNegative() {
		return nil, &UnableToPlaceOrderError{Number: args.Number, Reason: "negative order total"}
	}

	status := args.Status
	if status == "" {
		status = StatusPending
	}

	lines := make([]Line, len(args.Basket.Lines))
	for i, bl := range args.Basket.Lines {
		lines[i] = Line{
			ID:        uuid.New().String(),
			ProductID: bl.ProductID,
			Title:     bl.Title,
			Quantity:  bl.Quantity,
			UnitPrice: bl.UnitPrice,
		}
	}

	o := &Order{
		Number:            args.Number,
		UserID:            args.UserID,
		GuestEmail:        args.GuestEmail,
		TotalInclTax:      args.TotalInclTax,
		TotalExclTax:      args.TotalExclTax,
		ShippingAddressID: args.ShippingAddressID,
		BillingAddressID:  args.BillingAddressID,
		ShippingMethod:    args.ShippingMethod,
		Status:            status,
		CreatedAt:         c.now().UTC(),
		Lines:             lines,
	}
	if err := c.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}
