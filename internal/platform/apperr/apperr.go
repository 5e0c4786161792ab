// Package apperr holds the error kinds shared by every domain package and
// their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/db"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// Message is the user-facing text of err: the part after the kind prefix
// for wrapped domain errors, or the error text itself.
func Message(err error) string {
	msg := err.Error()
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrUnauthorized, ErrConflict} {
		prefix := kind.Error() + ": "
		if errors.Is(err, kind) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}

// FromRepo converts driver-level errors to domain kinds.
func FromRepo(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrConflict
	}
	return err
}

// IsDomain reports whether err is one of the expected domain kinds, as
// opposed to an infrastructure failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrConflict)
}

// Logged logs infrastructure failures under op and returns err unchanged.
// Domain errors pass through silently.
func Logged(logger zerolog.Logger, op string, err error) error {
	if err != nil && !IsDomain(err) {
		logger.Error().Err(err).Str("op", op).Msg("backend call failed")
	}
	return err
}

// ToHTTP maps err to an echo.HTTPError.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, Message(err))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, Message(err))
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, Message(err))
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, Message(err))
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, Message(err))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
