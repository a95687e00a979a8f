// Package auth holds the identity types used by the HTTP security layer:
// service API keys and authenticated customers.
package auth

import "context"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Customer is the authenticated storefront user extracted from a bearer token.
type Customer struct {
	ID    string
	Email string
}
