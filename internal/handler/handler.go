// Package handler is the HTTP edge of the service: request decoding, auth,
// and mapping domain results and errors onto JSON responses.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/basket"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// JWTSecret verifies customer bearer tokens (HS256).
	JWTSecret string
	// APIKeyPepper is mixed into the HMAC of admin API keys.
	APIKeyPepper string
}

// Handler serves the storefront API, delegating business logic to the
// injected domain repositories and the placement service.
type Handler struct {
	cfg Config

	products  product.Repository
	baskets   basket.Repository
	orders    order.Repository
	addresses address.Repository
	methods   shipping.Repository
	sessions  checkout.SessionStore
	placement *checkout.Placement
	apikeys   auth.Repository
	lg        *zap.Logger
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	baskets basket.Repository,
	orders order.Repository,
	addresses address.Repository,
	methods shipping.Repository,
	sessions checkout.SessionStore,
	placement *checkout.Placement,
	apikeys auth.Repository,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		products:  products,
		baskets:   baskets,
		orders:    orders,
		addresses: addresses,
		methods:   methods,
		sessions:  sessions,
		placement: placement,
		apikeys:   apikeys,
		lg:        lg,
	}
}

// Routes registers all API routes on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/shipping-methods", h.listShippingMethods)

	mux.HandleFunc("POST /api/checkout", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{number}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{number}/shipping-events", h.requireAPIKey(h.recordShippingEvent))

	mux.HandleFunc("GET /api/addresses", h.requireCustomer(h.listAddresses))
	mux.HandleFunc("POST /api/addresses", h.requireCustomer(h.createAddress))
	mux.HandleFunc("POST /api/addresses/{id}", h.requireCustomer(h.runAddressCommand))
	mux.HandleFunc("DELETE /api/addresses/{id}", h.requireCustomer(h.deleteAddress))
}
