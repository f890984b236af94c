package inbound

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

var (
	// ErrOverReceipt indicates cumulative receipts would exceed the expected quantity.
	ErrOverReceipt = errors.New("inbound: quantity received exceeds quantity expected")
	// ErrInvalidState indicates the shipment no longer accepts receipts.
	ErrInvalidState = errors.New("inbound: invalid shipment state")
)

// ProblemMappings renders inbound and ledger errors as problem responses.
var ProblemMappings = append([]httpx.StatusMapping{
	{Err: ErrOverReceipt, Status: http.StatusUnprocessableEntity, Title: "Over Receipt"},
	{Err: ErrInvalidState, Status: http.StatusConflict, Title: "Invalid State"},
	{Err: shared.ErrIdempotencyConflict, Status: http.StatusConflict, Title: "Duplicate"},
}, inventory.ProblemMappings...)
