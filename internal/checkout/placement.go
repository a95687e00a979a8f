package checkout

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/basket"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
	"github.com/xenking/storefront-checkout/internal/notify"
)

// PlaceOrderRequest is the input for one placement attempt.
type PlaceOrderRequest struct {
	SessionKey string
	// BasketID names the basket to convert. It is passed explicitly rather
	// than read from the session because the basket tied to the current
	// visit is not necessarily the right one: a frozen basket survives the
	// payment round-trip while a new open basket may appear.
	BasketID string

	// OrderNumber overrides the generated number; must be unique.
	OrderNumber string

	UserID    string
	UserEmail string
	// GuestEmail is set explicitly by payment integrations that learn the
	// address upstream; it is never overwritten by session data.
	GuestEmail string

	// Status overrides the initial order status.
	Status string

	// BillingAddress is an optional per-order billing record. Unlike the
	// shipping address it is supplied directly rather than through the
	// session and never touches the address book.
	BillingAddress *address.ShippingAddress

	// TotalInclTax/TotalExclTax override the computed totals when non-nil,
	// for callers that already priced the basket (tax backends, offers).
	TotalInclTax *decimal.Decimal
	TotalExclTax *decimal.Decimal

	// PaymentSources and PaymentEvents are records buffered while payment
	// was taken; they are attached to the order once it exists.
	PaymentSources []order.PaymentSource
	PaymentEvents  []order.PaymentEvent
}

// AddPaymentSource buffers a payment source taken before the order exists.
func (r *PlaceOrderRequest) AddPaymentSource(src order.PaymentSource) {
	r.PaymentSources = append(r.PaymentSources, src)
}

// AddPaymentEvent buffers a payment event taken before the order exists.
func (r *PlaceOrderRequest) AddPaymentEvent(ev order.PaymentEvent) {
	r.PaymentEvents = append(r.PaymentEvents, ev)
}

// Placement runs the order placement procedure end to end.
type Placement struct {
	creator   *order.Creator
	orders    order.Repository
	baskets   basket.Repository
	addresses *address.Resolver
	methods   shipping.Repository
	sessions  SessionStore
	dispatch  *notify.Dispatcher
	signal    *notify.Signal
	lg        *zap.Logger

	placedOrders metric.Int64Counter
}

// NewPlacement wires a Placement from its collaborators.
func NewPlacement(
	creator *order.Creator,
	orders order.Repository,
	baskets basket.Repository,
	addresses *address.Resolver,
	methods shipping.Repository,
	sessions SessionStore,
	dispatch *notify.Dispatcher,
	signal *notify.Signal,
	lg *zap.Logger,
	meter metric.Meter,
) (*Placement, error) {
	placed, err := meter.Int64Counter("checkout.orders_placed",
		metric.WithDescription("Number of successfully placed orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders_placed counter")
	}
	return &Placement{
		creator:      creator,
		orders:       orders,
		baskets:      baskets,
		addresses:    addresses,
		methods:      methods,
		sessions:     sessions,
		dispatch:     dispatch,
		signal:       signal,
		lg:           lg,
		placedOrders: placed,
	}, nil
}

// PlaceOrder resolves addresses and the shipping method, computes totals,
// persists the order with its payment records, submits the basket and runs
// the post-placement steps. On failure the basket is left untouched (frozen
// baskets stay frozen for a later retry) and no order is visible.
func (p *Placement) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	sess, err := p.session(ctx, req.SessionKey)
	if err != nil {
		return nil, err
	}

	b, err := p.baskets.GetByID(ctx, req.BasketID)
	if err != nil {
		return nil, errors.Wrap(err, "load basket")
	}
	if b.IsSubmitted() {
		return nil, &order.UnableToPlaceOrderError{
			Reason: "basket already submitted",
			Err:    basket.ErrAlreadySubmitted,
		}
	}

	var shippingAddrID string
	if b.RequiresShipping() {
		addr, err := p.addresses.Resolve(ctx, sess.AddressSource(req.UserID))
		if err != nil {
			if errors.Is(err, address.ErrMissingShippingAddress) || errors.Is(err, address.ErrAddressNotFound) {
				return nil, &order.UnableToPlaceOrderError{Reason: err.Error(), Err: err}
			}
			return nil, errors.Wrap(err, "resolve shipping address")
		}
		shippingAddrID = addr.ID
	}

	var billingAddrID string
	if req.BillingAddress != nil {
		baddr, err := p.addresses.SaveBillingAddress(ctx, req.BillingAddress)
		if err != nil {
			return nil, errors.Wrap(err, "save billing address")
		}
		billingAddrID = baddr.ID
	}

	method, err := p.resolveMethod(ctx, b, sess)
	if err != nil {
		return nil, err
	}
	method.BindBasket(b)

	totalIncl := b.Total().Add(method.ChargeInclTax())
	totalExcl := b.Total().Add(method.ChargeExclTax())
	if req.TotalInclTax != nil {
		totalIncl = *req.TotalInclTax
	}
	if req.TotalExclTax != nil {
		totalExcl = *req.TotalExclTax
	}

	number := req.OrderNumber
	if number == "" {
		number = GenerateOrderNumber(b.ID)
	}

	guestEmail := req.GuestEmail
	if req.UserID == "" && guestEmail == "" {
		guestEmail = sess.GuestEmail
	}

	o, err := p.creator.Create(ctx, order.CreateArgs{
		Number:            number,
		Basket:            b,
		TotalInclTax:      totalIncl,
		TotalExclTax:      totalExcl,
		UserID:            req.UserID,
		GuestEmail:        guestEmail,
		ShippingAddressID: shippingAddrID,
		BillingAddressID:  billingAddrID,
		ShippingMethod:    method.Code(),
		Status:            req.Status,
	})
	if err != nil {
		return nil, err
	}

	if err := p.savePaymentDetails(ctx, o, req); err != nil {
		return nil, err
	}

	if err := b.Submit(); err != nil {
		return nil, &order.UnableToPlaceOrderError{Number: number, Reason: err.Error(), Err: err}
	}
	if err := p.baskets.UpdateStatus(ctx, b.ID, basket.StatusSubmitted); err != nil {
		return nil, errors.Wrap(err, "submit basket")
	}

	p.handleSuccessfulOrder(ctx, o, sess, req)
	return o, nil
}

func (p *Placement) session(ctx context.Context, key string) (*Session, error) {
	sess, err := p.sessions.Get(ctx, key)
	if errors.Is(err, ErrSessionNotFound) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load checkout session")
	}
	return sess, nil
}

func (p *Placement) resolveMethod(ctx context.Context, b *basket.Basket, sess *Session) (shipping.Method, error) {
	if !b.RequiresShipping() {
		return &shipping.Free{}, nil
	}
	if sess.ShippingMethodCode == "" {
		return nil, &order.UnableToPlaceOrderError{
			Reason: "no shipping method selected",
			Err:    shipping.ErrMethodNotFound,
		}
	}
	method, err := p.methods.GetByCode(ctx, sess.ShippingMethodCode)
	if err != nil {
		if errors.Is(err, shipping.ErrMethodNotFound) {
			return nil, &order.UnableToPlaceOrderError{
				Reason: fmt.Sprintf("shipping method %q is not available", sess.ShippingMethodCode),
				Err:    err,
			}
		}
		return nil, errors.Wrap(err, "resolve shipping method")
	}
	return method, nil
}

// savePaymentDetails attaches the buffered payment sources and events to the
// freshly written order. Payment event quantities cover every line in full:
// the initial payment always concerns the whole order.
func (p *Placement) savePaymentDetails(ctx context.Context, o *order.Order, req PlaceOrderRequest) error {
	for _, src := range req.PaymentSources {
		src.ID = uuid.New().String()
		src.OrderNumber = o.Number
		if err := p.orders.CreatePaymentSource(ctx, &src); err != nil {
			return errors.Wrap(err, "save payment source")
		}
	}
	for _, ev := range req.PaymentEvents {
		ev.ID = uuid.New().String()
		ev.OrderNumber = o.Number
		ev.CreatedAt = time.Now().UTC()
		ev.Quantities = make([]order.EventQuantity, len(o.Lines))
		for i, l := range o.Lines {
			ev.Quantities[i] = order.EventQuantity{LineID: l.ID, Quantity: l.Quantity}
		}
		if err := p.orders.RecordPaymentEvent(ctx, &ev); err != nil {
			return errors.Wrap(err, "save payment event")
		}
	}
	return nil
}

// handleSuccessfulOrder runs the post-placement steps. None of them can fail
// the order: the confirmation is best-effort, the session write is logged on
// error, and observers are isolated from each other.
func (p *Placement) handleSuccessfulOrder(ctx context.Context, o *order.Order, sess *Session, req PlaceOrderRequest) {
	email := req.UserEmail
	if email == "" {
		email = o.GuestEmail
	}
	if err := p.dispatch.SendOrderConfirmation(ctx, o, email); err != nil {
		p.lg.Error("Order confirmation failed",
			zap.String("order", o.Number),
			zap.Error(err),
		)
	}

	sess.Flush()
	sess.PlacedOrderNumber = o.Number
	if err := p.sessions.Put(ctx, req.SessionKey, sess); err != nil {
		p.lg.Error("Flushing checkout session failed",
			zap.String("order", o.Number),
			zap.Error(err),
		)
	}

	p.signal.Send(ctx, notify.CheckoutCompleted{Order: o, UserID: req.UserID})
	p.placedOrders.Add(ctx, 1)
}

// GenerateOrderNumber derives a stable order number from the basket ID.
// Placing the same basket twice therefore collides on the order number and
// fails, which is exactly the protection double-submission needs. The full
// 32-bit digest is kept so that distinct baskets collide about as rarely as
// the hash itself does.
func GenerateOrderNumber(basketID string) string {
	h := fnv.New32a()
	h.Write([]byte(basketID))
	return fmt.Sprintf("1%010d", h.Sum32())
}
