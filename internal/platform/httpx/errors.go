// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// StatusMapping pairs a domain sentinel with the problem it renders as.
type StatusMapping struct {
	Err    error
	Status int
	Title  string
}

var defaultMappings = []StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Err: ErrConflict, Status: http.StatusConflict, Title: "Conflict"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// problemFielder is implemented by errors that carry structured detail.
type problemFielder interface {
	ProblemFields() map[string]any
}

func resolve(err error, mappings []StatusMapping) (StatusMapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m, true
		}
	}
	for _, m := range defaultMappings {
		if errors.Is(err, m.Err) {
			return m, true
		}
	}
	return StatusMapping{Status: http.StatusInternalServerError, Title: "Internal Error"}, false
}

// StatusOf reports the HTTP status err would be rendered with.
func StatusOf(err error, mappings ...StatusMapping) int {
	m, _ := resolve(err, mappings)
	return m.Status
}

// RespondError maps domain errors to HTTP responses using RFC7807. Mappings
// are consulted before the package defaults; unmapped errors become a 500
// without detail.
func RespondError(w http.ResponseWriter, err error, mappings ...StatusMapping) {
	m, ok := resolve(err, mappings)
	if !ok {
		Problem(w, m.Status, m.Title, "")
		return
	}
	ProblemWith(w, m.Status, m.Title, err.Error(), fieldsOf(err))
}

func fieldsOf(err error) map[string]any {
	var pf problemFielder
	if errors.As(err, &pf) {
		return pf.ProblemFields()
	}
	return nil
}
