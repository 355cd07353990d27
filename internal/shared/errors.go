package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique value already taken.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the operation is blocked by related records.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates a business rule refused the actor.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// CodedError attaches an API error code and a user safe message to one of the
// sentinel errors above.
type CodedError struct {
	Kind    error
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Kind
}

// NewCodedError builds a CodedError.
func NewCodedError(kind error, code, message string) error {
	return &CodedError{Kind: kind, Code: code, Message: message}
}

// IsUniqueViolation reports a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports a Postgres foreign key failure.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
