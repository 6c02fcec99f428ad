package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
)

var _ domain.CredentialRepository = (*Repository)(nil)

// GetToken implements the domain.CredentialRepository interface.
// It returns domain.ErrNoCredential when no token is stored.
func (repo *Repository) GetToken(ctx context.Context) (string, error) {
	var token string
	query := `SELECT value FROM kv WHERE key = ?`

	err := repo.dbConn.GetContext(ctx, &token, query, domain.CredentialKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	return token, nil
}

// SetToken implements the domain.CredentialRepository interface.
func (repo *Repository) SetToken(ctx context.Context, token string) error {
	query := `INSERT INTO kv(key, value, updated_at)
	          VALUES (?, ?, CURRENT_TIMESTAMP)
	          ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	_, err := repo.dbConn.ExecContext(ctx, query, domain.CredentialKey, token)
	if err != nil {
		return fmt.Errorf("setting token: %w", err)
	}
	return nil
}

// ClearToken implements the domain.CredentialRepository interface.
func (repo *Repository) ClearToken(ctx context.Context) error {
	query := `DELETE FROM kv WHERE key = ?`

	_, err := repo.dbConn.ExecContext(ctx, query, domain.CredentialKey)
	if err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}
