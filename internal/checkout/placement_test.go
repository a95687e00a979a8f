package checkout

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/basket"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
	"github.com/xenking/storefront-checkout/internal/notify"
)

// --- Mocks ---

type mockBasketRepo struct {
	baskets map[string]*basket.Basket
}

func (m *mockBasketRepo) GetByID(_ context.Context, id string) (*basket.Basket, error) {
	b, ok := m.baskets[id]
	if !ok {
		return nil, basket.ErrNotFound
	}
	return b, nil
}

func (m *mockBasketRepo) GetOpenByOwner(_ context.Context, ownerID string) (*basket.Basket, error) {
	for _, b := range m.baskets {
		if b.OwnerID == ownerID && b.Status == basket.StatusOpen {
			return b, nil
		}
	}
	return nil, basket.ErrNotFound
}

func (m *mockBasketRepo) Create(_ context.Context, b *basket.Basket) error {
	m.baskets[b.ID] = b
	return nil
}

func (m *mockBasketRepo) UpdateStatus(_ context.Context, id string, status basket.Status) error {
	m.baskets[id].Status = status
	return nil
}

func (m *mockBasketRepo) ReplaceLines(_ context.Context, id string, lines []basket.Line) error {
	m.baskets[id].Lines = lines
	return nil
}

type mockAddressRepo struct {
	shipping []address.ShippingAddress
	book     map[string]*address.UserAddress
	nextID   int
}

func (m *mockAddressRepo) CreateShippingAddress(_ context.Context, a *address.ShippingAddress) error {
	m.nextID++
	a.ID = "sa" + strconv.Itoa(m.nextID)
	m.shipping = append(m.shipping, *a)
	return nil
}

func (m *mockAddressRepo) GetUserAddress(_ context.Context, id string) (*address.UserAddress, error) {
	u, ok := m.book[id]
	if !ok {
		return nil, address.ErrAddressNotFound
	}
	return u, nil
}

func (m *mockAddressRepo) FindUserAddressByHash(_ context.Context, userID, hash string) (*address.UserAddress, error) {
	for _, u := range m.book {
		if u.UserID == userID && u.Hash == hash {
			return u, nil
		}
	}
	return nil, address.ErrAddressNotFound
}

func (m *mockAddressRepo) ListUserAddresses(_ context.Context, _ string) ([]address.UserAddress, error) {
	return nil, nil
}

func (m *mockAddressRepo) CreateUserAddress(_ context.Context, u *address.UserAddress) error {
	m.nextID++
	u.ID = "ua" + strconv.Itoa(m.nextID)
	m.book[u.ID] = u
	return nil
}

func (m *mockAddressRepo) IncrementNumOrders(_ context.Context, id string) error {
	m.book[id].NumOrders++
	return nil
}

func (m *mockAddressRepo) DeleteUserAddress(_ context.Context, _, id string) error {
	delete(m.book, id)
	return nil
}

type mockOrderRepo struct {
	orders  map[string]*order.Order
	events  []order.PaymentEvent
	sources []order.PaymentSource
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if _, ok := m.orders[o.Number]; ok {
		return &order.UnableToPlaceOrderError{Number: o.Number, Reason: "order number already taken"}
	}
	m.orders[o.Number] = o
	return nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	return m.orders[number], nil
}

func (m *mockOrderRepo) RecordShippingEvent(_ context.Context, _, _ string, _ map[string]int) (*order.ShippingEvent, error) {
	return nil, nil
}

func (m *mockOrderRepo) RecordPaymentEvent(_ context.Context, ev *order.PaymentEvent) error {
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockOrderRepo) CreatePaymentSource(_ context.Context, src *order.PaymentSource) error {
	m.sources = append(m.sources, *src)
	return nil
}

func (m *mockOrderRepo) ShippingEvents(_ context.Context, _ string) ([]order.ShippingEvent, error) {
	return nil, nil
}

func (m *mockOrderRepo) ShippingEventTypes(_ context.Context) ([]order.EventType, error) {
	return nil, nil
}

func (m *mockOrderRepo) GetShippingEventType(_ context.Context, _ string) (*order.EventType, error) {
	return nil, nil
}

type mockMethodRepo struct {
	methods map[string]shipping.Method
}

func (m *mockMethodRepo) List(_ context.Context) ([]shipping.Method, error) { return nil, nil }

func (m *mockMethodRepo) GetByCode(_ context.Context, code string) (shipping.Method, error) {
	method, ok := m.methods[code]
	if !ok {
		return nil, shipping.ErrMethodNotFound
	}
	return method, nil
}

type mockSessionStore struct {
	sessions map[string]*Session
}

func (m *mockSessionStore) Get(_ context.Context, key string) (*Session, error) {
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *mockSessionStore) Put(_ context.Context, key string, s *Session) error {
	m.sessions[key] = s
	return nil
}

type mockCommRepo struct {
	types  map[string]*notify.EventType
	events []notify.Event
}

func (m *mockCommRepo) GetEventType(_ context.Context, code string) (*notify.EventType, error) {
	et, ok := m.types[code]
	if !ok {
		return nil, notify.ErrTypeNotFound
	}
	return et, nil
}

func (m *mockCommRepo) CreateEvent(_ context.Context, ev *notify.Event) error {
	m.events = append(m.events, *ev)
	return nil
}

type captureSender struct {
	sent []notify.Message
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

type captureObserver struct {
	events []notify.CheckoutCompleted
}

func (o *captureObserver) CheckoutCompleted(_ context.Context, ev notify.CheckoutCompleted) {
	o.events = append(o.events, ev)
}

// --- Fixture ---

type fixture struct {
	placement *Placement
	baskets   *mockBasketRepo
	orders    *mockOrderRepo
	addresses *mockAddressRepo
	sessions  *mockSessionStore
	sender    *captureSender
	observer  *captureObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	baskets := &mockBasketRepo{baskets: make(map[string]*basket.Basket)}
	orders := &mockOrderRepo{orders: make(map[string]*order.Order)}
	addresses := &mockAddressRepo{book: make(map[string]*address.UserAddress)}
	sessions := &mockSessionStore{sessions: make(map[string]*Session)}
	sender := &captureSender{}
	observer := &captureObserver{}

	comm := &mockCommRepo{types: map[string]*notify.EventType{
		notify.CodeOrderPlaced: {
			Code:            notify.CodeOrderPlaced,
			SubjectTemplate: "Order {{.Order.Number}}",
			BodyTemplate:    "Thank you",
		},
	}}
	methods := &mockMethodRepo{methods: map[string]shipping.Method{
		"standard": standardMethod(),
	}}

	lg := zap.NewNop()
	signal := notify.NewSignal(lg)
	signal.Subscribe(observer)

	placement, err := NewPlacement(
		order.NewCreator(orders),
		orders,
		baskets,
		address.NewResolver(addresses),
		methods,
		sessions,
		notify.NewDispatcher(comm, sender, lg),
		signal,
		lg,
		noop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)

	return &fixture{
		placement: placement,
		baskets:   baskets,
		orders:    orders,
		addresses: addresses,
		sessions:  sessions,
		sender:    sender,
		observer:  observer,
	}
}

func standardMethod() *shipping.FixedPrice {
	return &shipping.FixedPrice{
		MethodCode:    "standard",
		MethodName:    "Standard",
		PricePerOrder: decimal.RequireFromString("5.00"),
		PricePerItem:  decimal.RequireFromString("1.50"),
	}
}

func shippableBasket(id string) *basket.Basket {
	return &basket.Basket{
		ID:     id,
		Status: basket.StatusOpen,
		Lines: []basket.Line{{
			ProductID:        "p1",
			Title:            "Widget",
			Quantity:         4,
			UnitPrice:        decimal.RequireFromString("10.00"),
			RequiresShipping: true,
		}},
	}
}

func sessionWithAddress() *Session {
	return &Session{
		ShippingFields: &address.ShippingAddress{
			LastName: "Barrington",
			Line1:    "75 Smith Road",
			Postcode: "N4 8TY",
			Country:  "GB",
		},
		ShippingMethodCode: "standard",
		GuestEmail:         "guest@example.com",
	}
}

// --- Tests ---

func TestPlaceOrderGuestCheckout(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = sessionWithAddress()

	o, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
		PaymentEvents: []order.PaymentEvent{
			{TypeCode: "settled", Amount: decimal.RequireFromString("51.00")},
		},
	})
	require.NoError(t, err)

	// Basket total 40.00 + shipping 5.00 + 4 * 1.50.
	assert.True(t, decimal.RequireFromString("51.00").Equal(o.TotalInclTax))
	assert.True(t, o.TotalInclTax.Equal(o.TotalExclTax))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "standard", o.ShippingMethod)
	assert.Equal(t, "guest@example.com", o.GuestEmail, "guest email defaults from the session")
	assert.NotEmpty(t, o.ShippingAddressID)

	// Basket submitted, payment event covers the full line.
	assert.Equal(t, basket.StatusSubmitted, f.baskets.baskets["b1"].Status)
	require.Len(t, f.orders.events, 1)
	require.Len(t, f.orders.events[0].Quantities, 1)
	assert.Equal(t, 4, f.orders.events[0].Quantities[0].Quantity)

	// Post-placement: confirmation sent, session flushed, observer notified.
	assert.Len(t, f.sender.sent, 1)
	sess := f.sessions.sessions["visitor"]
	assert.Nil(t, sess.ShippingFields)
	assert.Equal(t, o.Number, sess.PlacedOrderNumber)
	require.Len(t, f.observer.events, 1)
	assert.Equal(t, o.Number, f.observer.events[0].Order.Number)
}

func TestPlaceOrderMissingAddress(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = &Session{ShippingMethodCode: "standard"}

	_, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
	})

	var upErr *order.UnableToPlaceOrderError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, address.ErrMissingShippingAddress)
	assert.Equal(t, basket.StatusOpen, f.baskets.baskets["b1"].Status, "failed placement leaves the basket alone")
}

func TestPlaceOrderVanishedAddressBookEntry(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = &Session{
		UserAddressID:      "gone",
		ShippingMethodCode: "standard",
	}

	_, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
		UserID:     "u1",
	})

	assert.ErrorIs(t, err, address.ErrAddressNotFound)
}

func TestPlaceOrderSubmittedBasket(t *testing.T) {
	f := newFixture(t)
	b := shippableBasket("b1")
	require.NoError(t, b.Submit())
	f.baskets.baskets["b1"] = b

	_, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{BasketID: "b1"})

	assert.ErrorIs(t, err, basket.ErrAlreadySubmitted)
}

func TestPlaceOrderDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = sessionWithAddress()

	_, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
	})
	require.NoError(t, err)

	// A second basket forced onto the same order number.
	f.baskets.baskets["b2"] = shippableBasket("b2")
	f.sessions.sessions["visitor"] = sessionWithAddress()
	_, err = f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey:  "visitor",
		BasketID:    "b2",
		OrderNumber: GenerateOrderNumber("b1"),
	})

	var upErr *order.UnableToPlaceOrderError
	require.ErrorAs(t, err, &upErr)
}

func TestPlaceOrderExplicitGuestEmailWins(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = sessionWithAddress()

	o, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
		GuestEmail: "paypal@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "paypal@example.com", o.GuestEmail)
}

func TestPlaceOrderBillingAddress(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = shippableBasket("b1")
	f.sessions.sessions["visitor"] = sessionWithAddress()

	o, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
		BillingAddress: &address.ShippingAddress{
			LastName: "Barrington",
			Line1:    "1 Ledger Lane",
			Postcode: "EC1 1AA",
			Country:  "GB",
		},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, o.BillingAddressID)
	assert.NotEqual(t, o.ShippingAddressID, o.BillingAddressID)
	require.Len(t, f.addresses.shipping, 2, "shipping and billing snapshots are both persisted")
	assert.Empty(t, f.addresses.book, "billing addresses never enter the address book")
}

func TestPlaceOrderNoShippingRequired(t *testing.T) {
	f := newFixture(t)
	f.baskets.baskets["b1"] = &basket.Basket{
		ID:     "b1",
		Status: basket.StatusOpen,
		Lines: []basket.Line{{
			ProductID: "ebook",
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("9.99"),
		}},
	}
	f.sessions.sessions["visitor"] = &Session{GuestEmail: "guest@example.com"}

	o, err := f.placement.PlaceOrder(context.Background(), PlaceOrderRequest{
		SessionKey: "visitor",
		BasketID:   "b1",
	})

	require.NoError(t, err)
	assert.Empty(t, o.ShippingAddressID)
	assert.Equal(t, "free-shipping", o.ShippingMethod)
	assert.True(t, decimal.RequireFromString("9.99").Equal(o.TotalInclTax))
	assert.Empty(t, f.addresses.shipping, "no address is resolved for digital baskets")
}

func TestFreezeAndRestoreBasket(t *testing.T) {
	f := newFixture(t)
	frozen := shippableBasket("b1")
	f.baskets.baskets["b1"] = frozen
	f.sessions.sessions["visitor"] = sessionWithAddress()

	require.NoError(t, f.placement.FreezeBasket(context.Background(), "visitor", frozen))
	assert.Equal(t, basket.StatusFrozen, f.baskets.baskets["b1"].Status)

	// A new basket appears while payment is in flight.
	newer := &basket.Basket{
		ID:     "b2",
		Status: basket.StatusOpen,
		Lines: []basket.Line{{
			ProductID: "p2",
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("3.00"),
		}},
	}
	f.baskets.baskets["b2"] = newer

	restored, err := f.placement.RestoreFrozenBasket(context.Background(), "visitor", "b2")
	require.NoError(t, err)
	require.NotNil(t, restored)

	assert.Equal(t, "b1", restored.ID)
	assert.Equal(t, basket.StatusOpen, restored.Status)
	assert.Equal(t, 2, restored.NumLines(), "newer basket merged in")
	assert.Equal(t, basket.StatusMerged, f.baskets.baskets["b2"].Status)
}

func TestRestoreWithoutFrozenBasket(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["visitor"] = &Session{}

	restored, err := f.placement.RestoreFrozenBasket(context.Background(), "visitor", "")
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestGenerateOrderNumberIsStable(t *testing.T) {
	assert.Equal(t, GenerateOrderNumber("b1"), GenerateOrderNumber("b1"))
	assert.NotEqual(t, GenerateOrderNumber("b1"), GenerateOrderNumber("b2"))

	// Prefix digit plus the zero-padded full 32-bit digest.
	number := GenerateOrderNumber("b1")
	assert.Len(t, number, 11)
	assert.Equal(t, "1", number[:1])
}
