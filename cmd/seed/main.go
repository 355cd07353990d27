package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gpbmt-org/gpbmt/internal/app"
	"github.com/gpbmt-org/gpbmt/internal/platform/db"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/roles"
	"github.com/gpbmt-org/gpbmt/internal/users"
)

type sampleParish struct {
	name     string
	address  string
	phone    string
	email    string
	founding string
}

var sampleParishes = []sampleParish{
	{"Nhà Thờ Chính Tòa Ban Mê Thuột", "104 Phan Chu Trinh, TP. Buôn Ma Thuột, Đắk Lắk", "0262 3852 123", "nhathochinh@gpbmt.org", "1954-01-01"},
	{"Giáo Xứ Thánh Tâm", "15 Nguyễn Công Trứ, TP. Buôn Ma Thuột, Đắk Lắk", "0262 3851 456", "thanhtam@gpbmt.org", "1960-06-15"},
	{"Giáo Xứ Fatima", "88 Lê Duẩn, TP. Buôn Ma Thuột, Đắk Lắk", "0262 3853 789", "fatima@gpbmt.org", "1970-10-13"},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	password := cfg.SeedAdminPassword
	generated := password == ""
	if generated {
		if password, err = users.GenerateTempPassword(); err != nil {
			logger.Error("generate admin password", slog.Any("error", err))
			os.Exit(1)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), users.DefaultHashCost)
	if err != nil {
		logger.Error("hash admin password", slog.Any("error", err))
		os.Exit(1)
	}

	var created bool
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		roleIDs, err := seedRoles(ctx, roles.NewRepository(tx))
		if err != nil {
			return err
		}
		if err := seedParishes(ctx, tx); err != nil {
			return err
		}
		created, err = seedAdmin(ctx, tx, cfg.SeedAdminEmail, string(hash), roleIDs[rbac.RoleSuperAdmin])
		return err
	})
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seed completed", slog.Int("roles", len(rbac.Roles())), slog.Int("parishes", len(sampleParishes)))
	switch {
	case !created:
		logger.Info("super admin already exists", slog.String("email", cfg.SeedAdminEmail))
	case generated:
		// Shown once; it must be changed on first login.
		fmt.Printf("super admin %s created with temporary password %s\n", cfg.SeedAdminEmail, password)
	default:
		logger.Info("super admin created", slog.String("email", cfg.SeedAdminEmail))
	}
}

func seedRoles(ctx context.Context, repo *roles.Repository) (map[rbac.Role]uuid.UUID, error) {
	ids := make(map[rbac.Role]uuid.UUID, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		id, err := repo.UpsertRole(ctx, string(role), roles.Descriptions[role])
		if err != nil {
			return nil, err
		}
		ids[role] = id
	}
	return ids, nil
}

func seedParishes(ctx context.Context, tx pgx.Tx) error {
	for _, p := range sampleParishes {
		_, err := tx.Exec(ctx, `
			INSERT INTO parishes (id, name, address, phone, email, established_date)
			VALUES ($1, $2, $3, $4, $5, $6::date)
			ON CONFLICT (name) DO NOTHING`,
			uuid.New(), p.name, p.address, p.phone, p.email, p.founding,
		)
		if err != nil {
			return fmt.Errorf("seed parish %s: %w", p.name, err)
		}
	}
	return nil
}

func seedAdmin(ctx context.Context, tx pgx.Tx, email, hash string, roleID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role_id, must_change_password)
		VALUES ($1, $2, $3, 'Super Admin', $4, TRUE)
		ON CONFLICT (email) DO NOTHING`,
		uuid.New(), strings.ToLower(email), hash, roleID,
	)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
