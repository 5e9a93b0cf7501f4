package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/barstock/internal/platform/httpx"
)

var (
	// ErrIdempotencyConflict indicates the idempotency key was already used.
	ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", httpx.ErrConflict)
	// ErrActorInvalid occurs when the upstream actor header is not numeric.
	ErrActorInvalid = errors.New("actor header must be a positive integer")
)
