package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/checkout"
)

const (
	getSessionSQL = `SELECT data FROM checkout_sessions WHERE session_key = $1`

	putSessionSQL = `INSERT INTO checkout_sessions (session_key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

var _ checkout.SessionStore = (*SessionStore)(nil)

// SessionStore persists checkout sessions as JSONB rows keyed by visitor.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore returns a SessionStore that uses the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Get returns the session for the key, or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, key string) (*checkout.Session, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, getSessionSQL, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting checkout session: %w", err)
	}

	var sess checkout.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding checkout session: %w", err)
	}
	return &sess, nil
}

// Put upserts the session under the key.
func (s *SessionStore) Put(ctx context.Context, key string, sess *checkout.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding checkout session: %w", err)
	}
	if _, err := s.pool.Exec(ctx, putSessionSQL, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("storing checkout session: %w", err)
	}
	return nil
}
