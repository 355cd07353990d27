package parishioners

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

const selectParishioner = `
SELECT pr.id, p.id, p.name, pr.full_name, pr.baptism_name, pr.date_of_birth, pr.gender,
       pr.phone, pr.address, fh.id, fh.full_name, pr.created_at, pr.updated_at
FROM parishioners pr
JOIN parishes p ON p.id = pr.parish_id
LEFT JOIN parishioners fh ON fh.id = pr.family_head_id`

func scanParishioner(row pgx.Row) (Parishioner, error) {
	var (
		pr       Parishioner
		birth    pgtype.Date
		gender   pgtype.Text
		headID   *uuid.UUID
		headName pgtype.Text
	)
	err := row.Scan(
		&pr.ID, &pr.Parish.ID, &pr.Parish.Name, &pr.FullName, &pr.BaptismName, &birth, &gender,
		&pr.Phone, &pr.Address, &headID, &headName, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err != nil {
		return Parishioner{}, err
	}
	if birth.Valid {
		t := birth.Time
		pr.DateOfBirth = &t
	}
	if gender.Valid {
		g := gender.String
		pr.Gender = &g
	}
	if headID != nil {
		pr.FamilyHead = &HeadRef{ID: *headID, FullName: headName.String}
	}
	return pr, nil
}

func buildWhere(f ListFilters) db.Where {
	var w db.Where
	if s := shared.FoldSearch(f.Search); s != "" {
		w.Add("pr.search_key LIKE $%d", "%"+escapeLike(s)+"%")
	}
	if f.ParishID != nil {
		w.Add("pr.parish_id = $%d", *f.ParishID)
	}
	if f.Gender != "" {
		w.Add("pr.gender = $%d", f.Gender)
	}
	return w
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// Count returns the number of parishioners matching f.
func (r *Repository) Count(ctx context.Context, f ListFilters) (int, error) {
	w := buildWhere(f)
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM parishioners pr "+w.Clause(), w.Args()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("parishioners: count: %w", err)
	}
	return total, nil
}

// List returns one page of parishioners ordered by name.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Parishioner, error) {
	w := buildWhere(f)
	page, limit := shared.ClampPage(f.Page, f.Limit)
	query := fmt.Sprintf("%s %s ORDER BY pr.full_name, pr.id LIMIT $%d OFFSET $%d", selectParishioner, w.Clause(), w.Next(), w.Next()+1)
	args := append(w.Args(), limit, shared.Offset(page, limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("parishioners: list: %w", err)
	}
	defer rows.Close()

	out := make([]Parishioner, 0, limit)
	for rows.Next() {
		pr, err := scanParishioner(rows)
		if err != nil {
			return nil, fmt.Errorf("parishioners: scan: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// Get loads one parishioner.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Parishioner, error) {
	pr, err := scanParishioner(r.db.QueryRow(ctx, selectParishioner+" WHERE pr.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parishioner{}, shared.ErrNotFound
		}
		return Parishioner{}, fmt.Errorf("parishioners: get: %w", err)
	}
	return pr, nil
}

// Exists reports whether a parishioner id is known.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parishioners WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("parishioners: lookup: %w", err)
	}
	return ok, nil
}

// ParishExists reports whether a parish id is known.
func (r *Repository) ParishExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parishes WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("parishioners: parish lookup: %w", err)
	}
	return ok, nil
}

// Insert stores a new parishioner.
func (r *Repository) Insert(ctx context.Context, p NewParishioner) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO parishioners (id, parish_id, full_name, baptism_name, search_key, date_of_birth, gender, phone, address, family_head_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.ParishID, p.FullName, p.BaptismName, p.SearchKey, p.DateOfBirth, p.Gender, p.Phone, p.Address, p.FamilyHeadID,
	)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("parishioners: insert: %w", err)
	}
	return nil
}

// Update applies c to the parishioner.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, c Changes) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if c.ParishID != nil {
		add("parish_id", *c.ParishID)
	}
	if c.FullName != nil {
		add("full_name", *c.FullName)
	}
	if c.BaptismName != nil {
		add("baptism_name", *c.BaptismName)
	}
	if c.SearchKey != nil {
		add("search_key", *c.SearchKey)
	}
	if c.SetDateOfBirth {
		add("date_of_birth", c.DateOfBirth)
	}
	if c.SetGender {
		add("gender", c.Gender)
	}
	if c.Phone != nil {
		add("phone", *c.Phone)
	}
	if c.Address != nil {
		add("address", *c.Address)
	}
	if c.SetFamilyHead {
		add("family_head_id", c.FamilyHeadID)
	}
	tag, err := r.db.Exec(ctx, "UPDATE parishioners SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("parishioners: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Dependents counts the parishioners whose family head is id.
func (r *Repository) Dependents(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM parishioners WHERE family_head_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("parishioners: dependents: %w", err)
	}
	return n, nil
}

// Delete removes a parishioner.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM parishioners WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrConflict
		}
		return fmt.Errorf("parishioners: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
