package users

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

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const selectUser = `
SELECT u.id, u.email, u.full_name, u.phone, r.id, r.name, p.id, p.name,
       u.is_active, u.must_change_password, u.last_login_at, u.created_at, u.updated_at
FROM users u
JOIN roles r ON r.id = u.role_id
LEFT JOIN parishes p ON p.id = u.parish_id`

func scanUser(row pgx.Row) (User, error) {
	var (
		u          User
		parishID   *uuid.UUID
		parishName pgtype.Text
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role.ID, &u.Role.Name, &parishID, &parishName,
		&u.IsActive, &u.MustChangePassword, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if parishID != nil {
		u.Parish = &Ref{ID: *parishID, Name: parishName.String}
	}
	return u, nil
}

func buildWhere(f ListFilters) db.Where {
	var w db.Where
	if s := strings.TrimSpace(f.Search); s != "" {
		w.Add("(u.full_name ILIKE $%[1]d OR u.email ILIKE $%[1]d)", "%"+s+"%")
	}
	if f.RoleID != nil {
		w.Add("u.role_id = $%d", *f.RoleID)
	}
	if f.ParishID != nil {
		w.Add("u.parish_id = $%d", *f.ParishID)
	}
	if f.IsActive != nil {
		w.Add("u.is_active = $%d", *f.IsActive)
	}
	return w
}

// Count returns the number of users matching f.
func (r *Repository) Count(ctx context.Context, f ListFilters) (int, error) {
	w := buildWhere(f)
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users u "+w.Clause(), w.Args()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return total, nil
}

// List returns one page of users, newest first.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]User, error) {
	w := buildWhere(f)
	page, limit := shared.ClampPage(f.Page, f.Limit)
	query := fmt.Sprintf("%s %s ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d", selectUser, w.Clause(), w.Next(), w.Next()+1)
	args := append(w.Args(), limit, shared.Offset(page, limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get loads one user.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+" WHERE u.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// EmailTaken reports whether another user already has email.
func (r *Repository) EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`,
		email, except,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("users: email lookup: %w", err)
	}
	return taken, nil
}

// RoleName resolves a role id.
func (r *Repository) RoleName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	if err := r.db.QueryRow(ctx, `SELECT name FROM roles WHERE id = $1`, id).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("users: role lookup: %w", err)
	}
	return name, nil
}

// ParishExists reports whether a parish id is known.
func (r *Repository) ParishExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parishes WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("users: parish lookup: %w", err)
	}
	return ok, nil
}

// Insert stores a new user with mustChangePassword set.
func (r *Repository) Insert(ctx context.Context, u NewUser) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, phone, role_id, parish_id, must_change_password)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, TRUE)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Phone, u.RoleID, u.ParishID,
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// Update applies c to the user.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, c Changes) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if c.Email != nil {
		add("email", strings.ToLower(*c.Email))
	}
	if c.Name != nil {
		add("full_name", *c.Name)
	}
	if c.Phone != nil {
		add("phone", *c.Phone)
	}
	if c.RoleID != nil {
		add("role_id", *c.RoleID)
	}
	if c.SetParish {
		add("parish_id", c.ParishID)
	}
	if c.IsActive != nil {
		add("is_active", *c.IsActive)
	}
	tag, err := r.db.Exec(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("users: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPassword replaces the password hash and flags a forced change.
func (r *Repository) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, must_change_password = TRUE, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
	if err != nil {
		return fmt.Errorf("users: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
