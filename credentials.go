package jobcue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MODJayden/jobcue/domain"
)

// CredentialProvider owns the bearer token attached to outgoing requests.
type CredentialProvider struct {
	repo   domain.CredentialRepository
	logger *slog.Logger
}

// NewCredentialProvider wraps repo. A nil logger discards output.
func NewCredentialProvider(repo domain.CredentialRepository, logger *slog.Logger) *CredentialProvider {
	if logger == nil {
		logger = discardLogger()
	}
	return &CredentialProvider{repo: repo, logger: logger}
}

// Token returns the stored token. Storage failures are logged and reported
// as an absent token.
func (p *CredentialProvider) Token(ctx context.Context) (string, bool) {
	if p == nil || p.repo == nil {
		return "", false
	}
	token, err := p.repo.GetToken(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCredential) {
			p.logger.Warn("reading credential failed, continuing without it", "error", err)
		}
		return "", false
	}
	return token, token != ""
}

// SetToken stores token, typically after a login.
func (p *CredentialProvider) SetToken(ctx context.Context, token string) error {
	if p == nil || p.repo == nil {
		return errors.New("no credential repository configured")
	}
	if err := p.repo.SetToken(ctx, token); err != nil {
		return fmt.Errorf("setting token : %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (p *CredentialProvider) Clear(ctx context.Context) error {
	if p == nil || p.repo == nil {
		return nil
	}
	if err := p.repo.ClearToken(ctx); err != nil {
		return fmt.Errorf("clearing token : %w", err)
	}
	return nil
}
