package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// UpsertRole inserts the role or refreshes its description, returning the
// stored id.
func (r *Repository) UpsertRole(ctx context.Context, name, description string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (id, name, description) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id`, uuid.New(), name, description).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("roles: upsert %s: %w", name, err)
	}
	return id, nil
}
