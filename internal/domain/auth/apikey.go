package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned when an API key is missing, unknown, or
// inactive.
var ErrUnauthorized = errors.New("unauthorized")

// ActorType classifies who an API key acts for.
type ActorType string

const (
	ActorCustomer ActorType = "customer"
	ActorVendor   ActorType = "vendor"
	ActorPartner  ActorType = "partner"
)

// Actor is the explicit identity resolved from an API key. Handlers pass
// actor ids into domain services rather than services reading ambient
// request state.
type Actor struct {
	Type ActorType
	ID   string
}

// APIKeyInfo holds the identity data for a validated API key.
type APIKeyInfo struct {
	ID        string
	KeyHash   string
	Name      string
	ActorType ActorType
	ActorID   string
}

// Actor returns the identity the key acts for.
func (k *APIKeyInfo) Actor() Actor {
	return Actor{Type: k.ActorType, ID: k.ActorID}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
