package parishes

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/platform/cache"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

const entityType = "Parish"

// RepositoryPort defines data access methods for parishes.
type RepositoryPort interface {
	List(ctx context.Context, f ListFilters) ([]Parish, error)
	Get(ctx context.Context, id uuid.UUID) (Parish, error)
	NameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error)
	Insert(ctx context.Context, p Parish) error
	Update(ctx context.Context, id uuid.UUID, c Changes) error
	Dependents(ctx context.Context, id uuid.UUID) (users, parishioners int, err error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var (
	errNotFound        = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "parish not found")
	errDuplicateName   = shared.NewCodedError(shared.ErrDuplicate, "DUPLICATE_NAME", "a parish with this name already exists")
	errHasUsers        = shared.NewCodedError(shared.ErrConflict, "HAS_DEPENDENCIES", "users are still assigned to this parish")
	errHasParishioners = shared.NewCodedError(shared.ErrConflict, "HAS_PARISHIONERS", "the parish still has parishioners")
	errFutureFounding  = shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "foundingDate cannot be in the future")
)

// Service handles parish business logic.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	cache  *cache.JSONCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, recorder audit.Recorder, c *cache.JSONCache, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: recorder, cache: c, logger: logger, now: time.Now}
}

// List returns parishes ordered by name. Results are cached until the next
// parish mutation.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Parish, error) {
	active := "any"
	if f.IsActive != nil {
		active = strconv.FormatBool(*f.IsActive)
	}
	var out []Parish
	err := s.cache.Fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx, f)
	}, "list", active, strings.ToLower(strings.TrimSpace(f.Search)))
	return out, err
}

// Get loads one parish. Parish scoped principals only see their own parish.
func (s *Service) Get(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parish, error) {
	if actor != nil && actor.Role.ParishScoped() && !rbac.IsAllowedParish(actor, id) {
		return Parish{}, rbac.ParishMismatch()
	}
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Parish{}, errNotFound
	}
	return p, err
}

// Create registers a parish.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (Parish, error) {
	name := strings.TrimSpace(in.Name)
	if err := s.checkName(ctx, name, uuid.Nil); err != nil {
		return Parish{}, err
	}
	founding, err := s.parseFounding(in.FoundingDate)
	if err != nil {
		return Parish{}, err
	}
	p := Parish{
		ID:           uuid.New(),
		Name:         name,
		Address:      strings.TrimSpace(in.Address),
		Phone:        in.Phone,
		Email:        strings.ToLower(in.Email),
		PriestName:   strings.TrimSpace(in.PriestName),
		FoundingDate: founding,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return Parish{}, errDuplicateName
		}
		return Parish{}, err
	}
	created, err := s.repo.Get(ctx, p.ID)
	if err != nil {
		return Parish{}, err
	}
	s.changed(ctx, actor, audit.ActionCreate, created.ID, nil, created)
	return created, nil
}

// Update applies a partial change.
func (s *Service) Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (Parish, error) {
	current, err := s.Get(ctx, nil, id)
	if err != nil {
		return Parish{}, err
	}
	c := Changes{
		Address:    trimmed(in.Address),
		Phone:      in.Phone,
		Email:      in.Email,
		PriestName: trimmed(in.PriestName),
		IsActive:   in.IsActive,
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if !strings.EqualFold(name, current.Name) {
			if err := s.checkName(ctx, name, id); err != nil {
				return Parish{}, err
			}
		}
		c.Name = &name
	}
	if in.FoundingDate != nil {
		founding, err := s.parseFounding(*in.FoundingDate)
		if err != nil {
			return Parish{}, err
		}
		c.SetFoundingDate, c.FoundingDate = true, founding
	}
	if err := s.repo.Update(ctx, id, c); err != nil {
		switch {
		case errors.Is(err, shared.ErrDuplicate):
			return Parish{}, errDuplicateName
		case errors.Is(err, shared.ErrNotFound):
			return Parish{}, errNotFound
		}
		return Parish{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Parish{}, err
	}
	s.changed(ctx, actor, audit.ActionUpdate, id, current, updated)
	return updated, nil
}

// Delete removes a parish that has neither assigned users nor parishioners.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	current, err := s.Get(ctx, nil, id)
	if err != nil {
		return err
	}
	users, parishioners, err := s.repo.Dependents(ctx, id)
	if err != nil {
		return err
	}
	if users > 0 {
		return errHasUsers
	}
	if parishioners > 0 {
		return errHasParishioners
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, shared.ErrConflict):
			return errHasUsers
		case errors.Is(err, shared.ErrNotFound):
			return errNotFound
		}
		return err
	}
	s.changed(ctx, actor, audit.ActionDelete, id, current, nil)
	return nil
}

func (s *Service) checkName(ctx context.Context, name string, except uuid.UUID) error {
	taken, err := s.repo.NameTaken(ctx, name, except)
	if err != nil {
		return err
	}
	if taken {
		return errDuplicateName
	}
	return nil
}

// parseFounding reads a YYYY-MM-DD date; "" clears it.
func (s *Service) parseFounding(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "foundingDate must be a date in YYYY-MM-DD format")
	}
	if t.After(s.now()) {
		return nil, errFutureFounding
	}
	return &t, nil
}

func (s *Service) changed(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, oldValue, newValue any) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump parish cache", slog.Any("error", err))
	}
	_ = s.audit.Record(ctx, audit.NewEntry(ctx, actor, action, entityType, id.String(), oldValue, newValue))
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
