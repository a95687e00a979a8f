package address

import (
	"context"

	"github.com/go-faster/errors"
)

// Source carries the checkout-session address data the resolver works from:
// either raw submitted fields or a reference into the user's address book.
type Source struct {
	// Fields holds a freshly submitted address, when present.
	Fields *ShippingAddress
	// UserAddressID references a saved address book entry, when present.
	UserAddressID string
	// UserID identifies the authenticated requester; empty for guests.
	UserID string
}

// Resolver turns checkout-session address data into a persisted per-order
// shipping address, maintaining the address book as a side effect.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve produces the shipping address for an order being placed.
//
// Raw fields take precedence: the address is persisted and, for authenticated
// users, the matching address book entry is upserted by content hash with its
// reuse counter incremented. An address book reference is fetched, converted
// and persisted, also incrementing the counter. With neither present the
// resolution fails with ErrMissingShippingAddress.
//
// Exactly one shipping address row is written per call.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*ShippingAddress, error) {
	switch {
	case src.Fields != nil:
		return r.resolveFromFields(ctx, src)
	case src.UserAddressID != "":
		return r.resolveFromBook(ctx, src)
	default:
		return nil, ErrMissingShippingAddress
	}
}

func (r *Resolver) resolveFromFields(ctx context.Context, src Source) (*ShippingAddress, error) {
	addr := *src.Fields
	addr.ID = ""
	if err := r.repo.CreateShippingAddress(ctx, &addr); err != nil {
		return nil, errors.Wrap(err, "create shipping address")
	}
	if src.UserID != "" {
		if err := r.updateAddressBook(ctx, src.UserID, &addr); err != nil {
			return nil, errors.Wrap(err, "update address book")
		}
	}
	return &addr, nil
}

func (r *Resolver) resolveFromBook(ctx context.Context, src Source) (*ShippingAddress, error) {
	entry, err := r.repo.GetUserAddress(ctx, src.UserAddressID)
	if err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, errors.Wrap(err, "get user address")
	}

	addr := entry.ToShippingAddress()
	if err := r.repo.CreateShippingAddress(ctx, &addr); err != nil {
		return nil, errors.Wrap(err, "create shipping address")
	}
	if err := r.repo.IncrementNumOrders(ctx, entry.ID); err != nil {
		return nil, errors.Wrap(err, "increment address reuse counter")
	}
	return &addr, nil
}

// SaveBillingAddress persists a billing address snapshot for an order being
// placed. Billing addresses are per-order records: the address book is never
// consulted or updated for them.
func (r *Resolver) SaveBillingAddress(ctx context.Context, fields *ShippingAddress) (*ShippingAddress, error) {
	addr := *fields
	addr.ID = ""
	if err := r.repo.CreateShippingAddress(ctx, &addr); err != nil {
		return nil, errors.Wrap(err, "create billing address")
	}
	return &addr, nil
}

// updateAddressBook upserts the user's book entry matching the shipping
// address content hash and bumps its reuse counter.
func (r *Resolver) updateAddressBook(ctx context.Context, userID string, addr *ShippingAddress) error {
	hash := addr.Hash()
	entry, err := r.repo.FindUserAddressByHash(ctx, userID, hash)
	switch {
	case err == nil:
		return r.repo.IncrementNumOrders(ctx, entry.ID)
	case errors.Is(err, ErrAddressNotFound):
		entry = &UserAddress{
			UserID:    userID,
			Address:   *addr,
			Hash:      hash,
			NumOrders: 1,
		}
		entry.Address.ID = ""
		return r.repo.CreateUserAddress(ctx, entry)
	default:
		return err
	}
}
