package core

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Every stock-mutating operation surfaces exactly one of these sentinels,
// wrapped with context via fmt.Errorf("...: %w", Err...). Callers branch with
// errors.Is; the web adapter maps them onto HTTP statuses.
var (
	// ErrNotFound: referenced entity is absent or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the operation is not valid for the entity's current
	// lifecycle state (e.g. editing a non-Pending dispatch order).
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition: the requested status edge is not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock: a booking would reserve more than is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverBooked: a booking dispatch would exceed the booked quantity.
	ErrOverBooked = errors.New("dispatch exceeds booked quantity")
	// ErrAlreadyDispatched: container or pallet double-attachment.
	ErrAlreadyDispatched = errors.New("already attached to a dispatch order")
	// ErrValidation: missing or malformed required input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict: the storage engine aborted the transaction due to
	// contention. The caller may retry; nothing was applied.
	ErrConflict = errors.New("transaction conflict")
)

// classifyPgError folds serialization and deadlock aborts into ErrConflict so
// callers never have to know pg error codes. Everything else passes through.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ErrConflict
		}
	}
	return err
}
