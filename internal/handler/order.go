package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// getOrder returns the order with its lines, recorded shipping events and
// the aggregated shipping status.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	o, err := h.orders.GetByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.internalError(w, "get order", err)
		return
	}

	events, err := h.orders.ShippingEvents(r.Context(), number)
	if err != nil {
		h.internalError(w, "get shipping events", err)
		return
	}
	types, err := h.orders.ShippingEventTypes(r.Context())
	if err != nil {
		h.internalError(w, "get event types", err)
		return
	}

	cov := order.CoverageOf(events)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrderWithEvents(e, o, types, cov, events)
	})
}

// recordShippingEvent appends a fulfillment event to the order's ledger.
func (h *Handler) recordShippingEvent(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")

	d, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	typeCode, requested, err := decodeEventRequest(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if typeCode == "" {
		writeError(w, http.StatusBadRequest, "event type required")
		return
	}

	ev, err := h.orders.RecordShippingEvent(r.Context(), number, typeCode, requested)
	if err != nil {
		h.mapEventError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeShippingEvent(e, ev)
	})
}

func (h *Handler) mapEventError(w http.ResponseWriter, err error) {
	var iqErr *order.InvalidEventQuantityError
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrUnknownEventType),
		errors.Is(err, order.ErrUnknownLine):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr), errors.Is(err, order.ErrNoEventQuantities):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalError(w, "record shipping event", err)
	}
}

func decodeEventRequest(d *jx.Decoder) (typeCode string, requested map[string]int, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			typeCode, err = d.Str()
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				var (
					lineID string
					qty    int
				)
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "line_id":
						lineID, err = d.Str()
					case "quantity":
						qty, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				if requested == nil {
					requested = make(map[string]int)
				}
				requested[lineID] = qty
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return typeCode, requested, err
}

// encodeOrder writes the order. When types is non-nil the derived shipping
// statuses are included.
func encodeOrder(e *jx.Encoder, o *order.Order, types []order.EventType, cov order.Coverage) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, o, types, cov)
	})
}

func encodeOrderWithEvents(e *jx.Encoder, o *order.Order, types []order.EventType, cov order.Coverage, events []order.ShippingEvent) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, o, types, cov)
		e.Field("shipping_events", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range events {
					encodeShippingEvent(e, &events[i])
				}
			})
		})
	})
}

func encodeOrderFields(e *jx.Encoder, o *order.Order, types []order.EventType, cov order.Coverage) {
	e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
	e.Field("status", func(e *jx.Encoder) { e.Str(o.Status) })
	e.Field("shipping_status", func(e *jx.Encoder) { e.Str(order.ShippingStatus(o, types, cov)) })
	e.Field("total_incl_tax", func(e *jx.Encoder) { e.Str(o.TotalInclTax.StringFixed(2)) })
	e.Field("total_excl_tax", func(e *jx.Encoder) { e.Str(o.TotalExclTax.StringFixed(2)) })
	e.Field("shipping_method", func(e *jx.Encoder) { e.Str(o.ShippingMethod) })
	if o.GuestEmail != "" {
		e.Field("guest_email", func(e *jx.Encoder) { e.Str(o.GuestEmail) })
	}
	e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	e.Field("lines", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range o.Lines {
				encodeOrderLine(e, l, types, cov)
			}
		})
	})
}

func encodeOrderLine(e *jx.Encoder, l order.Line, types []order.EventType, cov order.Coverage) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(l.Title) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { e.Str(l.UnitPrice.StringFixed(2)) })
		e.Field("shipping_status", func(e *jx.Encoder) { e.Str(order.LineShippingStatus(l, types, cov)) })
	})
}

func encodeShippingEvent(e *jx.Encoder, ev *order.ShippingEvent) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(ev.ID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(ev.TypeCode) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(ev.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, q := range ev.Quantities {
					e.Obj(func(e *jx.Encoder) {
						e.Field("line_id", func(e *jx.Encoder) { e.Str(q.LineID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(q.Quantity) })
					})
				}
			})
		})
	})
}
