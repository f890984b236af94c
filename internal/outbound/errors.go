package outbound

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

var (
	// ErrOverPick indicates a pick larger than what remains on the item.
	ErrOverPick = errors.New("outbound: quantity picked exceeds quantity ordered")
	// ErrInvalidState indicates the order does not allow the requested transition.
	ErrInvalidState = errors.New("outbound: invalid order state")
)

// ProblemMappings renders outbound and ledger errors as problem responses.
var ProblemMappings = append([]httpx.StatusMapping{
	{Err: ErrOverPick, Status: http.StatusUnprocessableEntity, Title: "Over Pick"},
	{Err: ErrInvalidState, Status: http.StatusConflict, Title: "Invalid State"},
	{Err: shared.ErrIdempotencyConflict, Status: http.StatusConflict, Title: "Duplicate"},
}, inventory.ProblemMappings...)
