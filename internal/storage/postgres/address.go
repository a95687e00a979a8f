package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/address"
)

const (
	createShippingAddressSQL = `INSERT INTO shipping_addresses
		(id, first_name, last_name, line1, line2, line3, city, state, postcode, country, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	userAddressColumns = `id, user_id, first_name, last_name, line1, line2, line3,
		city, state, postcode, country, phone, hash, num_orders, created_at`

	getUserAddressSQL = `SELECT ` + userAddressColumns + `
		FROM user_addresses WHERE id = $1`

	findUserAddressByHashSQL = `SELECT ` + userAddressColumns + `
		FROM user_addresses WHERE user_id = $1 AND hash = $2`

	listUserAddressesSQL = `SELECT ` + userAddressColumns + `
		FROM user_addresses WHERE user_id = $1
		ORDER BY num_orders DESC, created_at DESC`

	createUserAddressSQL = `INSERT INTO user_addresses
		(id, user_id, first_name, last_name, line1, line2, line3,
		 city, state, postcode, country, phone, hash, num_orders, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	incrementNumOrdersSQL = `UPDATE user_addresses
		SET num_orders = num_orders + 1 WHERE id = $1`

	deleteUserAddressSQL = `DELETE FROM user_addresses
		WHERE user_id = $1 AND id = $2`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// CreateShippingAddress persists a per-order snapshot, assigning its ID.
func (r *AddressRepository) CreateShippingAddress(ctx context.Context, a *address.ShippingAddress) error {
	a.ID = uuid.New().String()
	_, err := r.pool.Exec(ctx, createShippingAddressSQL,
		a.ID, a.FirstName, a.LastName, a.Line1, a.Line2, a.Line3,
		a.City, a.State, a.Postcode, a.Country, a.Phone,
	)
	if err != nil {
		return fmt.Errorf("creating shipping address: %w", err)
	}
	return nil
}

// GetUserAddress returns a book entry by ID, or ErrAddressNotFound.
func (r *AddressRepository) GetUserAddress(ctx context.Context, id string) (*address.UserAddress, error) {
	return r.getUserAddress(ctx, getUserAddressSQL, id)
}

// FindUserAddressByHash returns the user's entry with the given content hash,
// or ErrAddressNotFound.
func (r *AddressRepository) FindUserAddressByHash(ctx context.Context, userID, hash string) (*address.UserAddress, error) {
	return r.getUserAddress(ctx, findUserAddressByHashSQL, userID, hash)
}

func (r *AddressRepository) getUserAddress(ctx context.Context, query string, args ...any) (*address.UserAddress, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting user address: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUserAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting user address: %w", err)
	}
	return &u, nil
}

// ListUserAddresses returns the user's address book, most used first.
func (r *AddressRepository) ListUserAddresses(ctx context.Context, userID string) ([]address.UserAddress, error) {
	rows, err := r.pool.Query(ctx, listUserAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user addresses: %w", err)
	}
	return pgx.CollectRows(rows, scanUserAddress)
}

// CreateUserAddress persists a new address book entry, assigning its ID.
func (r *AddressRepository) CreateUserAddress(ctx context.Context, u *address.UserAddress) error {
	u.ID = uuid.New().String()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	a := &u.Address
	_, err := r.pool.Exec(ctx, createUserAddressSQL,
		u.ID, u.UserID, a.FirstName, a.LastName, a.Line1, a.Line2, a.Line3,
		a.City, a.State, a.Postcode, a.Country, a.Phone,
		u.Hash, u.NumOrders, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user address: %w", err)
	}
	return nil
}

// IncrementNumOrders bumps the reuse counter of a book entry.
func (r *AddressRepository) IncrementNumOrders(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, incrementNumOrdersSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing address reuse counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrAddressNotFound
	}
	return nil
}

// DeleteUserAddress removes the user's book entry.
func (r *AddressRepository) DeleteUserAddress(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, deleteUserAddressSQL, userID, id)
	if err != nil {
		return fmt.Errorf("deleting user address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrAddressNotFound
	}
	return nil
}

func scanUserAddress(row pgx.CollectableRow) (address.UserAddress, error) {
	var u address.UserAddress
	a := &u.Address
	err := row.Scan(
		&u.ID, &u.UserID, &a.FirstName, &a.LastName, &a.Line1, &a.Line2, &a.Line3,
		&a.City, &a.State, &a.Postcode, &a.Country, &a.Phone,
		&u.Hash, &u.NumOrders, &u.CreatedAt,
	)
	return u, err
}
