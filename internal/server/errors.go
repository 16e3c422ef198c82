package server

import (
	"errors"
	"net/http"

	"github.com/planwise/plancheck/internal/run"
)

// HTTPStatus maps pipeline errors to response status codes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, run.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, run.ErrNotParsed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
