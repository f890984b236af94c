package reporting

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing product.
	ErrNotFound = errors.New("reporting: not found")
	// ErrValidation indicates malformed query parameters.
	ErrValidation = errors.New("reporting: invalid input")
)

// ProblemMappings renders reporting errors as problem responses.
var ProblemMappings = []httpx.StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}
