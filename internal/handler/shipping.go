package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// listShippingMethods returns the configured methods. With a basket_id query
// parameter each method is bound to the basket and its charge included.
func (h *Handler) listShippingMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.methods.List(r.Context())
	if err != nil {
		h.internalError(w, "list shipping methods", err)
		return
	}

	var b *basket.Basket
	if id := r.URL.Query().Get("basket_id"); id != "" {
		b, err = h.baskets.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, basket.ErrNotFound) {
				writeError(w, http.StatusNotFound, "basket not found")
				return
			}
			h.internalError(w, "load basket", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, m := range methods {
				encodeShippingMethod(e, m, b)
			}
		})
	})
}

func encodeShippingMethod(e *jx.Encoder, m shipping.Method, b *basket.Basket) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(m.Code()) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name()) })
		e.Field("description", func(e *jx.Encoder) { e.Str(m.Description()) })
		if b != nil {
			m.BindBasket(b)
			e.Field("charge_incl_tax", func(e *jx.Encoder) { e.Str(m.ChargeInclTax().StringFixed(2)) })
			e.Field("charge_excl_tax", func(e *jx.Encoder) { e.Str(m.ChargeExclTax().StringFixed(2)) })
		}
	})
}
