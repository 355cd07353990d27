package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// StatusError is an error that decides its own response, such as an
// authorization denial.
type StatusError interface {
	error
	HTTPStatus() int
	ErrorCode() string
	PublicMessage() string
}

// RespondError maps domain errors to error envelopes. Unknown errors become a
// 500 whose cause is logged and never sent to the client.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var se StatusError
	if errors.As(err, &se) {
		Error(w, se.HTTPStatus(), se.ErrorCode(), se.PublicMessage())
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		ValidationError(w, verrs)
		return
	}
	if errors.Is(err, ErrMalformedBody) {
		Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body is not valid JSON")
		return
	}

	status, code, message := classify(err)
	var coded *shared.CodedError
	if errors.As(err, &coded) {
		code, message = coded.Code, coded.Message
	}
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	Error(w, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", "resource already exists"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", "invalid input"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusBadRequest, "HAS_DEPENDENCIES", "resource is still referenced"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "you do not have permission to perform this action"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// ValidationError writes a 400 envelope listing every failed field.
func ValidationError(w http.ResponseWriter, verrs validator.ValidationErrors) {
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Path: fieldPath(fe), Message: fieldMessage(fe)})
	}
	JSON(w, http.StatusBadRequest, Envelope{Error: &ErrorBody{
		Code:    "VALIDATION_ERROR",
		Message: "invalid input",
		Details: details,
	}})
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "phone":
		return "is not a valid phone number"
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	default:
		return "is invalid"
	}
}
