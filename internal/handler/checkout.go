package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/basket"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

type checkoutItem struct {
	productID string
	quantity  int
}

type checkoutRequest struct {
	basketID string
	items    []checkoutItem

	shippingAddress *address.ShippingAddress
	billingAddress  *address.ShippingAddress
	addressID       string
	shippingMethod  string
	guestEmail      string
	status          string
}

// placeOrder converts a basket into an order. The basket is referenced by ID
// or described inline as items; the shipping address comes as raw fields or
// an address book reference.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customer(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid bearer token")
		return
	}

	d, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	req, err := decodeCheckoutRequest(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	b, stop := h.checkoutBasket(w, r, req, customer)
	if stop {
		return
	}
	if b.IsEmpty() {
		writeError(w, http.StatusBadRequest, "basket is empty")
		return
	}

	sessionKey := r.Header.Get("X-Session-Key")
	if sessionKey == "" {
		sessionKey = uuid.New().String()
	}
	sess, err := h.sessions.Get(r.Context(), sessionKey)
	if errors.Is(err, checkout.ErrSessionNotFound) {
		sess = &checkout.Session{}
	} else if err != nil {
		h.internalError(w, "load checkout session", err)
		return
	}
	mergeCheckoutSession(sess, req)
	if err := h.sessions.Put(r.Context(), sessionKey, sess); err != nil {
		h.internalError(w, "store checkout session", err)
		return
	}

	place := checkout.PlaceOrderRequest{
		SessionKey:     sessionKey,
		BasketID:       b.ID,
		Status:         req.status,
		BillingAddress: req.billingAddress,
	}
	if customer != nil {
		place.UserID = customer.ID
		place.UserEmail = customer.Email
	}

	o, err := h.placement.PlaceOrder(r.Context(), place)
	if err != nil {
		h.mapPlaceOrderError(w, err)
		return
	}

	w.Header().Set("X-Session-Key", sessionKey)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o, nil, nil)
	})
}

// mergeCheckoutSession applies the request's checkout fields over the stored
// session. Fields absent from the request keep whatever an earlier call put
// there, so an address selected through the address book survives into the
// placement. Raw fields and a book reference are mutually exclusive:
// supplying one clears the other.
func mergeCheckoutSession(sess *checkout.Session, req *checkoutRequest) {
	if req.shippingAddress != nil {
		sess.ShippingFields = req.shippingAddress
		sess.UserAddressID = ""
	}
	if req.addressID != "" {
		sess.UserAddressID = req.addressID
		sess.ShippingFields = nil
	}
	if req.shippingMethod != "" {
		sess.ShippingMethodCode = req.shippingMethod
	}
	if req.guestEmail != "" {
		sess.GuestEmail = req.guestEmail
	}
}

// checkoutBasket loads or builds the basket for a checkout request. The
// second return value reports that a response has already been written.
func (h *Handler) checkoutBasket(
	w http.ResponseWriter, r *http.Request, req *checkoutRequest, customer *auth.Customer,
) (*basket.Basket, bool) {
	if req.basketID != "" {
		b, err := h.baskets.GetByID(r.Context(), req.basketID)
		if err != nil {
			if errors.Is(err, basket.ErrNotFound) {
				writeError(w, http.StatusNotFound, "basket not found")
				return nil, true
			}
			h.internalError(w, "load basket", err)
			return nil, true
		}
		return b, false
	}

	if len(req.items) == 0 {
		writeError(w, http.StatusBadRequest, "basket_id or items required")
		return nil, true
	}

	ids := make([]string, len(req.items))
	for i, it := range req.items {
		if it.quantity <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "quantity must be greater than 0 for product "+it.productID)
			return nil, true
		}
		ids[i] = it.productID
	}

	products, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		h.internalError(w, "load products", err)
		return nil, true
	}
	byID := make(map[string]int, len(products))
	for i := range products {
		byID[products[i].ID] = i
	}

	b := &basket.Basket{
		ID:        uuid.New().String(),
		Status:    basket.StatusOpen,
		CreatedAt: time.Now().UTC(),
		Lines:     make([]basket.Line, len(req.items)),
	}
	if customer != nil {
		b.OwnerID = customer.ID
	}
	for i, it := range req.items {
		pi, ok := byID[it.productID]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "product "+it.productID+" not found")
			return nil, true
		}
		p := products[pi]
		b.Lines[i] = basket.Line{
			ProductID:        p.ID,
			Title:            p.Title,
			Quantity:         it.quantity,
			UnitPrice:        p.Price,
			RequiresShipping: p.RequiresShipping,
		}
	}

	if err := h.baskets.Create(r.Context(), b); err != nil {
		h.internalError(w, "create basket", err)
		return nil, true
	}
	return b, false
}

// mapPlaceOrderError converts placement errors to HTTP responses.
func (h *Handler) mapPlaceOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, basket.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "basket already submitted")
	case errors.Is(err, address.ErrMissingShippingAddress),
		errors.Is(err, address.ErrAddressNotFound),
		errors.Is(err, shipping.ErrMethodNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var upErr *order.UnableToPlaceOrderError
		if errors.As(err, &upErr) {
			writeError(w, http.StatusConflict, upErr.Error())
			return
		}
		h.internalError(w, "place order", err)
	}
}

func decodeCheckoutRequest(d *jx.Decoder) (*checkoutRequest, error) {
	var req checkoutRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "basket_id":
			req.basketID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeCheckoutItem(d)
				if err != nil {
					return err
				}
				req.items = append(req.items, it)
				return nil
			})
		case "shipping_address":
			req.shippingAddress, err = decodeShippingAddress(d)
		case "billing_address":
			req.billingAddress, err = decodeShippingAddress(d)
		case "address_id":
			req.addressID, err = d.Str()
		case "shipping_method":
			req.shippingMethod, err = d.Str()
		case "guest_email":
			req.guestEmail, err = d.Str()
		case "status":
			req.status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeCheckoutItem(d *jx.Decoder) (checkoutItem, error) {
	var it checkoutItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			it.productID, err = d.Str()
		case "quantity":
			it.quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodeShippingAddress(d *jx.Decoder) (*address.ShippingAddress, error) {
	var a address.ShippingAddress
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "first_name":
			a.FirstName, err = d.Str()
		case "last_name":
			a.LastName, err = d.Str()
		case "line1":
			a.Line1, err = d.Str()
		case "line2":
			a.Line2, err = d.Str()
		case "line3":
			a.Line3, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "postcode":
			a.Postcode, err = d.Str()
		case "country":
			a.Country, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
