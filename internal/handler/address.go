package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
)

// addressCommand names an action on a stored address book entry. Commands
// are dispatched through a fixed table; anything outside it is rejected.
type addressCommand string

const (
	// cmdShipTo selects the entry as the shipping address of the current
	// checkout session.
	cmdShipTo addressCommand = "ship_to"
	// cmdDelete removes the entry from the book.
	cmdDelete addressCommand = "delete"
)

var addressCommands = map[addressCommand]func(h *Handler, w http.ResponseWriter, r *http.Request, c *auth.Customer, id string){
	cmdShipTo: (*Handler).shipToAddress,
	cmdDelete: (*Handler).removeAddress,
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request, c *auth.Customer) {
	entries, err := h.addresses.ListUserAddresses(r.Context(), c.ID)
	if err != nil {
		h.internalError(w, "list addresses", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range entries {
				encodeUserAddress(e, &entries[i])
			}
		})
	})
}

// createAddress adds an entry to the user's address book. Entries are
// deduplicated by content hash: resubmitting a known address returns the
// existing entry instead of creating a second row.
func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request, c *auth.Customer) {
	d, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	fields, err := decodeShippingAddress(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if fields.Line1 == "" {
		writeError(w, http.StatusUnprocessableEntity, "line1 is required")
		return
	}

	hash := fields.Hash()
	existing, err := h.addresses.FindUserAddressByHash(r.Context(), c.ID, hash)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeUserAddress(e, existing)
		})
		return
	case !errors.Is(err, address.ErrAddressNotFound):
		h.internalError(w, "find address by hash", err)
		return
	}

	entry := &address.UserAddress{
		UserID:    c.ID,
		Address:   *fields,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.addresses.CreateUserAddress(r.Context(), entry); err != nil {
		h.internalError(w, "create address", err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeUserAddress(e, entry)
	})
}

// runAddressCommand dispatches a whitelisted command against a book entry.
func (h *Handler) runAddressCommand(w http.ResponseWriter, r *http.Request, c *auth.Customer) {
	d, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var cmd string
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "command":
			cmd, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	run, ok := addressCommands[addressCommand(cmd)]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown command "+cmd)
		return
	}
	run(h, w, r, c, r.PathValue("id"))
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request, c *auth.Customer) {
	h.removeAddress(w, r, c, r.PathValue("id"))
}

func (h *Handler) removeAddress(w http.ResponseWriter, r *http.Request, c *auth.Customer, id string) {
	if err := h.addresses.DeleteUserAddress(r.Context(), c.ID, id); err != nil {
		if errors.Is(err, address.ErrAddressNotFound) {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		h.internalError(w, "delete address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// shipToAddress points the checkout session at the book entry, so the next
// placement ships to it.
func (h *Handler) shipToAddress(w http.ResponseWriter, r *http.Request, c *auth.Customer, id string) {
	if _, err := h.addresses.GetUserAddress(r.Context(), id); err != nil {
		if errors.Is(err, address.ErrAddressNotFound) {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		h.internalError(w, "get address", err)
		return
	}

	sessionKey := r.Header.Get("X-Session-Key")
	if sessionKey == "" {
		writeError(w, http.StatusBadRequest, "X-Session-Key header required")
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionKey)
	if errors.Is(err, checkout.ErrSessionNotFound) {
		sess = &checkout.Session{}
	} else if err != nil {
		h.internalError(w, "load checkout session", err)
		return
	}
	sess.UserAddressID = id
	sess.ShippingFields = nil
	if err := h.sessions.Put(r.Context(), sessionKey, sess); err != nil {
		h.internalError(w, "store checkout session", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func encodeUserAddress(e *jx.Encoder, u *address.UserAddress) {
	a := &u.Address
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(u.ID) })
		e.Field("first_name", func(e *jx.Encoder) { e.Str(a.FirstName) })
		e.Field("last_name", func(e *jx.Encoder) { e.Str(a.LastName) })
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
		e.Field("line3", func(e *jx.Encoder) { e.Str(a.Line3) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("postcode", func(e *jx.Encoder) { e.Str(a.Postcode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("summary", func(e *jx.Encoder) { e.Str(a.Summary()) })
		e.Field("num_orders", func(e *jx.Encoder) { e.Int(u.NumOrders) })
	})
}
