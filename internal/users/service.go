package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

const entityType = "User"

// DefaultHashCost is the bcrypt cost for stored passwords.
const DefaultHashCost = 12

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Count(ctx context.Context, f ListFilters) (int, error)
	List(ctx context.Context, f ListFilters) ([]User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error)
	RoleName(ctx context.Context, id uuid.UUID) (string, error)
	ParishExists(ctx context.Context, id uuid.UUID) (bool, error)
	Insert(ctx context.Context, u NewUser) error
	Update(ctx context.Context, id uuid.UUID, c Changes) error
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
}

var (
	errDuplicateEmail = shared.NewCodedError(shared.ErrDuplicate, "DUPLICATE_EMAIL", "email is already in use")
	errInvalidRole    = shared.NewCodedError(shared.ErrValidation, "INVALID_ROLE", "role does not exist")
	errParishRequired = shared.NewCodedError(shared.ErrValidation, "PARISH_REQUIRED", "this role must be assigned to a parish")
	errInvalidParish  = shared.NewCodedError(shared.ErrValidation, "INVALID_PARISH", "parish does not exist")
	errUserNotFound   = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "user not found")
	errRoleNotFound   = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "role not found")
	errSelfDeactivate = shared.NewCodedError(shared.ErrForbidden, "FORBIDDEN", "you cannot deactivate your own account")
)

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    audit.Recorder
	hashCost int
}

// NewService builds Service instance. A non-positive hashCost selects
// DefaultHashCost.
func NewService(repo RepositoryPort, recorder audit.Recorder, hashCost int) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if hashCost <= 0 {
		hashCost = DefaultHashCost
	}
	return &Service{repo: repo, audit: recorder, hashCost: hashCost}
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, f ListFilters) ([]User, shared.Pagination, error) {
	f.Page, f.Limit = shared.ClampPage(f.Page, f.Limit)
	var (
		users []User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.repo.List(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(f.Page, f.Limit, total), nil
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, errUserNotFound
	}
	return u, err
}

// Create registers a new account. The user has to change the password at
// first login.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (User, error) {
	roleID, err := shared.ParseUUID(in.RoleID, "roleId")
	if err != nil {
		return User{}, err
	}
	var parishID *uuid.UUID
	if in.ParishID != nil {
		if parishID, err = shared.ParseOptionalUUID(*in.ParishID, "parishId"); err != nil {
			return User{}, err
		}
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	taken, err := s.repo.EmailTaken(ctx, email, uuid.Nil)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, errDuplicateEmail
	}

	if err := s.checkAssignment(ctx, roleID, parishID, errInvalidRole); err != nil {
		return User{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	id := uuid.New()
	err = s.repo.Insert(ctx, NewUser{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Phone:        in.Phone,
		RoleID:       roleID,
		ParishID:     parishID,
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return User{}, errDuplicateEmail
		}
		return User{}, err
	}
	created, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, audit.ActionCreate, id, nil, created)
	return created, nil
}

// Update applies a partial change. The parish requirement is checked against
// the resulting role and parish.
func (s *Service) Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (User, error) {
	if in.IsActive != nil && !*in.IsActive && actor != nil && actor.ID == id {
		return User{}, errSelfDeactivate
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	var c Changes
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != strings.ToLower(current.Email) {
			taken, err := s.repo.EmailTaken(ctx, email, id)
			if err != nil {
				return User{}, err
			}
			if taken {
				return User{}, errDuplicateEmail
			}
			c.Email = &email
		}
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		c.Name = &name
	}
	c.Phone = in.Phone
	c.IsActive = in.IsActive

	roleID := current.Role.ID
	if in.RoleID != nil {
		if roleID, err = shared.ParseUUID(*in.RoleID, "roleId"); err != nil {
			return User{}, err
		}
		c.RoleID = &roleID
	}
	parishID := current.ParishID()
	if in.ParishID.Set {
		parishID = in.ParishID.Ptr()
		c.SetParish, c.ParishID = true, parishID
	}
	if c.RoleID != nil || c.SetParish {
		if err := s.checkAssignment(ctx, roleID, parishID, errInvalidRole); err != nil {
			return User{}, err
		}
	}

	if err := s.repo.Update(ctx, id, c); err != nil {
		return User{}, s.mapWriteError(err)
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, audit.ActionUpdate, id, current, updated)
	return updated, nil
}

// Deactivate soft deletes a user. Actors cannot deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (User, error) {
	if actor != nil && actor.ID == id {
		return User{}, errSelfDeactivate
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	inactive := false
	if err := s.repo.Update(ctx, id, Changes{IsActive: &inactive}); err != nil {
		return User{}, s.mapWriteError(err)
	}
	current.IsActive = false
	s.record(ctx, actor, audit.ActionDeactivate, id, map[string]bool{"isActive": true}, map[string]bool{"isActive": false})
	return current, nil
}

// ResetPassword sets newPassword, or a generated one when empty, and forces
// a change at next login.
func (s *Service) ResetPassword(ctx context.Context, actor *rbac.Principal, id uuid.UUID, newPassword string) (ResetPasswordResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return ResetPasswordResult{}, err
	}
	password := newPassword
	if password == "" {
		generated, err := GenerateTempPassword()
		if err != nil {
			return ResetPasswordResult{}, err
		}
		password = generated
	}
	hash, err := s.hash(password)
	if err != nil {
		return ResetPasswordResult{}, err
	}
	if err := s.repo.SetPassword(ctx, id, hash); err != nil {
		return ResetPasswordResult{}, s.mapWriteError(err)
	}
	s.record(ctx, actor, audit.ActionResetPassword, id, nil, map[string]bool{"mustChangePassword": true})
	return ResetPasswordResult{UserID: id, TemporaryPassword: password, MustChangePassword: true}, nil
}

// ChangeRole assigns another role. Unknown roles are reported as not found.
func (s *Service) ChangeRole(ctx context.Context, actor *rbac.Principal, id uuid.UUID, roleID uuid.UUID) (User, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.checkAssignment(ctx, roleID, current.ParishID(), errRoleNotFound); err != nil {
		return User{}, err
	}
	if err := s.repo.Update(ctx, id, Changes{RoleID: &roleID}); err != nil {
		return User{}, s.mapWriteError(err)
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, audit.ActionChangeRole, id, current.Role, updated.Role)
	return updated, nil
}

// checkAssignment validates that roleID exists, that parish scoped roles get
// a parish and that the parish exists.
func (s *Service) checkAssignment(ctx context.Context, roleID uuid.UUID, parishID *uuid.UUID, unknownRole error) error {
	name, err := s.repo.RoleName(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return unknownRole
		}
		return err
	}
	role, _ := rbac.ParseRole(name)
	if role.ParishScoped() && parishID == nil {
		return errParishRequired
	}
	if parishID != nil {
		ok, err := s.repo.ParishExists(ctx, *parishID)
		if err != nil {
			return err
		}
		if !ok {
			return errInvalidParish
		}
	}
	return nil
}

func (s *Service) mapWriteError(err error) error {
	switch {
	case errors.Is(err, shared.ErrDuplicate):
		return errDuplicateEmail
	case errors.Is(err, shared.ErrNotFound):
		return errUserNotFound
	default:
		return err
	}
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "password is too long")
	}
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) record(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, oldValue, newValue any) {
	_ = s.audit.Record(ctx, audit.NewEntry(ctx, actor, action, entityType, id.String(), oldValue, newValue))
}
