package parishes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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

const selectParish = `
SELECT id, name, address, phone, email, priest_name, established_date, is_active, created_at, updated_at
FROM parishes`

func scanParish(row pgx.Row) (Parish, error) {
	var p Parish
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Phone, &p.Email, &p.PriestName, &p.FoundingDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns parishes ordered by name.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Parish, error) {
	var w db.Where
	if s := strings.TrimSpace(f.Search); s != "" {
		w.Add("name ILIKE $%d", "%"+s+"%")
	}
	if f.IsActive != nil {
		w.Add("is_active = $%d", *f.IsActive)
	}
	rows, err := r.db.Query(ctx, selectParish+" "+w.Clause()+" ORDER BY name", w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("parishes: list: %w", err)
	}
	defer rows.Close()

	out := make([]Parish, 0)
	for rows.Next() {
		p, err := scanParish(rows)
		if err != nil {
			return nil, fmt.Errorf("parishes: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get loads one parish.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Parish, error) {
	p, err := scanParish(r.db.QueryRow(ctx, selectParish+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parish{}, shared.ErrNotFound
		}
		return Parish{}, fmt.Errorf("parishes: get: %w", err)
	}
	return p, nil
}

// NameTaken reports whether another parish already uses name.
func (r *Repository) NameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM parishes WHERE lower(name) = lower($1) AND id <> $2)`,
		name, except,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("parishes: name lookup: %w", err)
	}
	return taken, nil
}

// Insert stores p.
func (r *Repository) Insert(ctx context.Context, p Parish) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO parishes (id, name, address, phone, email, priest_name, established_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Address, p.Phone, p.Email, p.PriestName, p.FoundingDate,
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("parishes: insert: %w", err)
	}
	return nil
}

// Update applies c.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, c Changes) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if c.Name != nil {
		add("name", *c.Name)
	}
	if c.Address != nil {
		add("address", *c.Address)
	}
	if c.Phone != nil {
		add("phone", *c.Phone)
	}
	if c.Email != nil {
		add("email", *c.Email)
	}
	if c.PriestName != nil {
		add("priest_name", *c.PriestName)
	}
	if c.SetFoundingDate {
		add("established_date", c.FoundingDate)
	}
	if c.IsActive != nil {
		add("is_active", *c.IsActive)
	}
	tag, err := r.db.Exec(ctx, "UPDATE parishes SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("parishes: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Dependents counts the users and parishioners attached to a parish.
func (r *Repository) Dependents(ctx context.Context, id uuid.UUID) (users, parishioners int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM users WHERE parish_id = $1),
		       (SELECT COUNT(*) FROM parishioners WHERE parish_id = $1)`, id,
	).Scan(&users, &parishioners)
	if err != nil {
		return 0, 0, fmt.Errorf("parishes: count dependents: %w", err)
	}
	return users, parishioners, nil
}

// Delete removes a parish. Rows still referencing it make the delete fail
// with shared.ErrConflict.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM parishes WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrConflict
		}
		return fmt.Errorf("parishes: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
