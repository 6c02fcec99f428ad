package domain

import (
	"context"
	"errors"
)

// CredentialKey is the well-known storage key under which the bearer token is persisted.
const CredentialKey = "auth_token"

// ErrNoCredential is returned by a CredentialRepository when no token is stored.
var ErrNoCredential = errors.New("no credential stored")

// CredentialRepository persists the single bearer token used to authenticate requests.
type CredentialRepository interface {
	// GetToken returns the stored token, or ErrNoCredential when there is none.
	GetToken(ctx context.Context) (string, error)

	// SetToken stores token, replacing any previous value.
	SetToken(ctx context.Context, token string) error

	// ClearToken removes the stored token. Clearing an absent token is not an error.
	ClearToken(ctx context.Context) error
}
