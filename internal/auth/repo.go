package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gpbmt-org/gpbmt/internal/platform/db"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const findByEmailSQL = `
SELECT u.id, u.email, u.password_hash, u.full_name, u.role_id, r.name,
       u.parish_id, p.name, u.is_active, u.must_change_password, u.last_login_at
FROM users u
JOIN roles r ON r.id = u.role_id
LEFT JOIN parishes p ON p.id = u.parish_id
WHERE lower(u.email) = $1`

// FindByEmail fetches a user by email, case insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u          User
		parishName pgtype.Text
	)
	err := r.db.QueryRow(ctx, findByEmailSQL, strings.ToLower(strings.TrimSpace(email))).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.RoleID, &u.RoleName,
		&u.ParishID, &parishName, &u.IsActive, &u.MustChangePassword, &u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	u.ParishName = parishName.String
	return &u, nil
}

// TouchLastLogin stamps the login time.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: touch last login: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
