package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Authenticate validates email/password credentials and returns the
// principal to store in the session. Unknown emails, inactive accounts and
// wrong passwords all yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*rbac.Principal, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("touch last login", slog.Any("error", err), slog.String("user_id", user.ID.String()))
	}
	return user.Principal(), nil
}
