package parishioners

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

const entityType = "Parishioner"

// RepositoryPort defines data access methods for parishioners.
type RepositoryPort interface {
	Count(ctx context.Context, f ListFilters) (int, error)
	List(ctx context.Context, f ListFilters) ([]Parishioner, error)
	Get(ctx context.Context, id uuid.UUID) (Parishioner, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ParishExists(ctx context.Context, id uuid.UUID) (bool, error)
	Insert(ctx context.Context, p NewParishioner) error
	Update(ctx context.Context, id uuid.UUID, c Changes) error
	Dependents(ctx context.Context, id uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var (
	errNotFound       = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "parishioner not found")
	errParishNotFound = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "parish not found")
	errHeadNotFound   = shared.NewCodedError(shared.ErrNotFound, "NOT_FOUND", "family head not found")
	errParishRequired = shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "parish is required")
	errSelfHead       = shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "a parishioner cannot be their own family head")
	errFutureBirth    = shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "dateOfBirth cannot be in the future")
)

// Service handles parishioner business logic. Every method enforces the
// parish scope of the acting principal.
type Service struct {
	repo  RepositoryPort
	audit audit.Recorder
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{repo: repo, audit: recorder, now: time.Now}
}

// List returns one page of parishioners visible to actor. f.ParishID is the
// requested parish; scoped principals asking for another parish are denied.
func (s *Service) List(ctx context.Context, actor *rbac.Principal, f ListFilters) ([]Parishioner, shared.Pagination, error) {
	parish, denial := rbac.EffectiveParish(actor, f.ParishID)
	if denial != nil {
		return nil, shared.Pagination{}, denial
	}
	f.ParishID = parish
	f.Page, f.Limit = shared.ClampPage(f.Page, f.Limit)

	var (
		list  []Parishioner
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.repo.List(gctx, f)
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
	return list, shared.NewPagination(f.Page, f.Limit, total), nil
}

// Get loads one parishioner within actor's scope.
func (s *Service) Get(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parishioner, error) {
	pr, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Parishioner{}, errNotFound
	}
	if err != nil {
		return Parishioner{}, err
	}
	if !rbac.ScopeFor(actor).Allows(pr.Parish.ID) {
		return Parishioner{}, rbac.ParishMismatch()
	}
	return pr, nil
}

// Create registers a parishioner. Scoped principals create in their own
// parish when none is given.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (Parishioner, error) {
	requested, err := shared.ParseOptionalUUID(in.Parish, "parish")
	if err != nil {
		return Parishioner{}, err
	}
	parish, denial := rbac.EffectiveParish(actor, requested)
	if denial != nil {
		return Parishioner{}, denial
	}
	if parish == nil {
		return Parishioner{}, errParishRequired
	}
	if err := s.checkParish(ctx, *parish); err != nil {
		return Parishioner{}, err
	}
	head, err := shared.ParseOptionalUUID(in.FamilyHead, "familyHead")
	if err != nil {
		return Parishioner{}, err
	}
	if head != nil {
		if err := s.checkHead(ctx, *head); err != nil {
			return Parishioner{}, err
		}
	}
	birth, err := s.parseBirth(in.DateOfBirth)
	if err != nil {
		return Parishioner{}, err
	}

	row := NewParishioner{
		ID:           uuid.New(),
		ParishID:     *parish,
		FullName:     strings.TrimSpace(in.FullName),
		BaptismName:  strings.TrimSpace(in.BaptismName),
		DateOfBirth:  birth,
		Gender:       optional(in.Gender),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		FamilyHeadID: head,
	}
	row.SearchKey = searchKey(row.FullName, row.BaptismName, row.Phone)
	if err := s.repo.Insert(ctx, row); err != nil {
		return Parishioner{}, err
	}
	created, err := s.repo.Get(ctx, row.ID)
	if err != nil {
		return Parishioner{}, err
	}
	s.record(ctx, actor, audit.ActionCreate, created.ID, nil, created)
	return created, nil
}

// Update applies a partial change. Scoped principals cannot move a
// parishioner to another parish.
func (s *Service) Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (Parishioner, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return Parishioner{}, err
	}

	c := Changes{
		FullName:    trimmed(in.FullName),
		BaptismName: trimmed(in.BaptismName),
		Phone:       trimmed(in.Phone),
		Address:     trimmed(in.Address),
	}
	target, err := shared.ParseOptionalUUID(in.Parish, "parish")
	if err != nil {
		return Parishioner{}, err
	}
	if target != nil && *target != current.Parish.ID {
		if !rbac.IsAllowedParish(actor, *target) {
			return Parishioner{}, rbac.ParishMismatch()
		}
		if err := s.checkParish(ctx, *target); err != nil {
			return Parishioner{}, err
		}
		c.ParishID = target
	}
	if in.FamilyHead.Set {
		head := in.FamilyHead.Ptr()
		if head != nil {
			if *head == id {
				return Parishioner{}, errSelfHead
			}
			if err := s.checkHead(ctx, *head); err != nil {
				return Parishioner{}, err
			}
		}
		c.SetFamilyHead, c.FamilyHeadID = true, head
	}
	if in.DateOfBirth != nil {
		birth, err := s.parseBirth(*in.DateOfBirth)
		if err != nil {
			return Parishioner{}, err
		}
		c.SetDateOfBirth, c.DateOfBirth = true, birth
	}
	if in.Gender != nil {
		c.SetGender, c.Gender = true, optional(*in.Gender)
	}
	if c.FullName != nil || c.BaptismName != nil || c.Phone != nil {
		key := searchKey(valueOr(c.FullName, current.FullName), valueOr(c.BaptismName, current.BaptismName), valueOr(c.Phone, current.Phone))
		c.SearchKey = &key
	}

	if err := s.repo.Update(ctx, id, c); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Parishioner{}, errNotFound
		}
		return Parishioner{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Parishioner{}, err
	}
	s.record(ctx, actor, audit.ActionUpdate, id, current, updated)
	return updated, nil
}

// Delete removes a parishioner that heads no family members and returns the
// removed record.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parishioner, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return Parishioner{}, err
	}
	n, err := s.repo.Dependents(ctx, id)
	if err != nil {
		return Parishioner{}, err
	}
	if n > 0 {
		return Parishioner{}, hasDependents(n)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return Parishioner{}, errNotFound
		case errors.Is(err, shared.ErrConflict):
			return Parishioner{}, hasDependents(1)
		}
		return Parishioner{}, err
	}
	s.record(ctx, actor, audit.ActionDelete, id, current, nil)
	return current, nil
}

func hasDependents(n int) error {
	msg := "this parishioner is the family head of other parishioners"
	if n == 1 {
		msg = "this parishioner is the family head of another parishioner"
	}
	return shared.NewCodedError(shared.ErrConflict, "HAS_DEPENDENTS", msg)
}

func (s *Service) checkParish(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.ParishExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errParishNotFound
	}
	return nil
}

func (s *Service) checkHead(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errHeadNotFound
	}
	return nil
}

// parseBirth reads a YYYY-MM-DD date; "" clears it.
func (s *Service) parseBirth(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "dateOfBirth must be a date in YYYY-MM-DD format")
	}
	if t.After(s.now()) {
		return nil, errFutureBirth
	}
	return &t, nil
}

func (s *Service) record(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, oldValue, newValue any) {
	_ = s.audit.Record(ctx, audit.NewEntry(ctx, actor, action, entityType, id.String(), oldValue, newValue))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
