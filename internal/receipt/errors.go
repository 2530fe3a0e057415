package receipt

import (
	"errors"
	"net/http"

	"github.com/zombor/grocery-tracker/internal/parser"
)

var (
	// ErrInput is returned for uploads or text that cannot become a ticket.
	ErrInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown tickets, items, stores, products
	// or parser keys.
	ErrNotFound = errors.New("not found")
	// ErrPermission is returned when a record belongs to another user.
	ErrPermission = errors.New("permission denied")
	// ErrConflict is returned when the current state forbids the operation.
	ErrConflict = errors.New("conflict")
	// ErrValidation is returned for requests with missing or invalid fields.
	ErrValidation = errors.New("validation failed")
)

// statusCode maps a service error onto an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, parser.ErrParserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
