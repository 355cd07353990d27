package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gpbmt-org/gpbmt/internal/platform/db"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Repository persists audit logs in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Insert stores entry. Replaying the same entry ID is a no-op so retried queue
// tasks do not duplicate rows.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, old_value, new_value, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		nullJSON(entry.OldValue), nullJSON(entry.NewValue),
		entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func nullJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func buildWhere(f Filters) (string, []any) {
	var conditions []string
	var args []any
	argPos := 1

	if f.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("a.entity_type = $%d", argPos))
		args = append(args, f.EntityType)
		argPos++
	}
	if f.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("a.entity_id = $%d", argPos))
		args = append(args, f.EntityID)
		argPos++
	}
	if f.Action != "" {
		conditions = append(conditions, fmt.Sprintf("a.action = $%d", argPos))
		args = append(args, f.Action)
		argPos++
	}
	if f.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("a.user_id = $%d", argPos))
		args = append(args, *f.UserID)
		argPos++
	}
	if f.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.created_at >= $%d", argPos))
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.created_at < $%d", argPos))
		args = append(args, *f.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// Count returns the number of logs matching f.
func (r *Repository) Count(ctx context.Context, f Filters) (int, error) {
	where, args := buildWhere(f)
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs a "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return total, nil
}

// List returns one page of logs, newest first.
func (r *Repository) List(ctx context.Context, f Filters) ([]Log, error) {
	where, args := buildWhere(f)
	page, limit := shared.ClampPage(f.Page, f.Limit)
	query := fmt.Sprintf(`
		SELECT a.id, a.user_id, a.action, a.entity_type, a.entity_id, a.old_value, a.new_value,
		       a.ip_address, a.user_agent, a.created_at, u.email, u.full_name
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		%s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, shared.Offset(page, limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	logs := make([]Log, 0, limit)
	for rows.Next() {
		var l Log
		var email, name pgtype.Text
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &l.OldValue, &l.NewValue,
			&l.IPAddress, &l.UserAgent, &l.CreatedAt, &email, &name,
		); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		l.UserEmail = email.String
		l.UserName = name.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
