package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/service/auth"
	"github.com/phrazzld/futureself-api/internal/store"
)

// ErrInvalidRequest marks malformed path or query parameters.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnauthenticated is returned when a handler runs without a user in context.
var ErrUnauthenticated = errors.New("user not authenticated")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var ve validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidSubject),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized

	case domain.IsValidationError(err),
		errors.As(err, &ve),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrNotYetDue),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrStorageConflict):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Domain errors
// describe the caller's input and are returned as-is; anything else gets a
// generic message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var se *domain.ScheduleError
	var ve validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidSubject):
		return "Invalid token"

	case errors.Is(err, ErrUnauthenticated):
		return "User ID not found or invalid"

	case errors.As(err, &ve):
		return SanitizeValidationError(err)

	case errors.Is(err, domain.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "Letter not found"

	case errors.Is(err, domain.ErrStorageConflict):
		return "Letter was modified concurrently, please retry"

	case errors.As(err, &se):
		// Field, reason and state names only; the wrapped cause is never shown.
		safe := *se
		safe.Err = nil
		return safe.Error()

	case errors.Is(err, ErrInvalidRequest):
		return err.Error()

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a short message that
// names the first offending field.
func SanitizeValidationError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Validation error"
	}
	fe := ve[0]
	msg := getValidationTagMessage(fe.Tag())
	if fe.Tag() == "max" && isNumeric(fe.Kind()) {
		msg = "too large"
	}
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), msg)
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_if":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "excluded_unless", "excluded_if":
		return "not allowed for this delivery kind"
	default:
		return "validation failed"
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// HandleAPIError writes the response for err using the standard mapping.
// A non-empty message overrides the safe default.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
