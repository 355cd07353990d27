package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Lister is the part of Service used by the handler.
type Lister interface {
	List(ctx context.Context, f Filters) ([]Log, shared.Pagination, error)
	ExportCSV(ctx context.Context, f Filters) ([]byte, error)
}

// Handler exposes the audit trail.
type Handler struct {
	logger  *slog.Logger
	service Lister
	gate    *rbac.Gate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service Lister, gate *rbac.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := rbac.AnyOf(rbac.PermAuditLogsRead)
	r.Method(http.MethodGet, "/", h.gate.RequirePermission(read, h.list))
	r.Method(http.MethodGet, "/export.csv", h.gate.RequirePermission(read, h.export))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, _ rbac.AuthContext) {
	f, err := filtersFromRequest(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	logs, meta, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Paginated(w, logs, meta)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, _ rbac.AuthContext) {
	f, err := filtersFromRequest(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	data, err := h.service.ExportCSV(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
	_, _ = w.Write(data)
}

func filtersFromRequest(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	f := Filters{
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		Action:     q.Get("action"),
	}
	f.Page, f.Limit = shared.PageFromQuery(q)
	if raw := q.Get("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Filters{}, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "userId must be a valid id")
		}
		f.UserID = &id
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filters{}, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", name+" must be a date in YYYY-MM-DD format")
		}
		if name == "to" {
			t = t.Add(24 * time.Hour)
		}
		*dst = &t
	}
	return f, nil
}
