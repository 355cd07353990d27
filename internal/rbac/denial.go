package rbac

import (
	"net/http"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
)

// Error codes carried by denial responses.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

// DenialKind distinguishes the reasons a request was refused.
type DenialKind int

const (
	DenialUnauthenticated DenialKind = iota + 1
	DenialForbidden
	DenialUnassignedParish
	DenialParishMismatch
)

func (k DenialKind) String() string {
	switch k {
	case DenialUnauthenticated:
		return "unauthenticated"
	case DenialForbidden:
		return "forbidden"
	case DenialUnassignedParish:
		return "unassigned_parish"
	case DenialParishMismatch:
		return "parish_mismatch"
	default:
		return "unknown"
	}
}

// Denial is the typed result of a failed authorization check.
type Denial struct {
	Kind    DenialKind
	Code    string
	Status  int
	Message string
}

func (d *Denial) Error() string {
	return d.Code + ": " + d.Message
}

var (
	denyUnauthenticated = Denial{
		Kind:    DenialUnauthenticated,
		Code:    CodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Message: "authentication required",
	}
	denyForbidden = Denial{
		Kind:    DenialForbidden,
		Code:    CodeForbidden,
		Status:  http.StatusForbidden,
		Message: "you do not have permission to perform this action",
	}
	denyUnassignedParish = Denial{
		Kind:    DenialUnassignedParish,
		Code:    CodeForbidden,
		Status:  http.StatusForbidden,
		Message: "your account is not assigned to a parish",
	}
	denyParishMismatch = Denial{
		Kind:    DenialParishMismatch,
		Code:    CodeForbidden,
		Status:  http.StatusForbidden,
		Message: "you can only access data of your own parish",
	}
)

// Unauthenticated returns the denial for requests without a principal.
func Unauthenticated() *Denial { d := denyUnauthenticated; return &d }

// Forbidden returns the generic permission denial.
func Forbidden() *Denial { d := denyForbidden; return &d }

// UnassignedParish returns the denial for parish scoped accounts without a parish.
func UnassignedParish() *Denial { d := denyUnassignedParish; return &d }

// ParishMismatch returns the denial for access outside the principal's parish.
func ParishMismatch() *Denial { d := denyParishMismatch; return &d }

// HTTPStatus implements httpx.StatusError.
func (d *Denial) HTTPStatus() int { return d.Status }

// ErrorCode implements httpx.StatusError.
func (d *Denial) ErrorCode() string { return d.Code }

// PublicMessage implements httpx.StatusError.
func (d *Denial) PublicMessage() string { return d.Message }

// WriteDenial renders d as the standard error envelope.
func WriteDenial(w http.ResponseWriter, d *Denial) {
	httpx.Error(w, d.Status, d.Code, d.Message)
}
