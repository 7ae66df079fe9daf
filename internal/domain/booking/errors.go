package booking

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"salonbook/internal/pkg/apperr"
)

var (
	ErrNotFound           = apperr.New(apperr.NotFound, "booking not found")
	ErrValidation         = apperr.New(apperr.Validation, "invalid booking request")
	ErrModeUnavailable    = apperr.New(apperr.Validation, "provider does not offer this mode")
	ErrCapacity           = apperr.New(apperr.Validation, "group size exceeds provider capacity")
	ErrLeadTime           = apperr.New(apperr.Validation, "interval starts before the minimum lead time")
	ErrUnknownAction      = apperr.New(apperr.Validation, "unknown booking action")
	ErrSlotTaken          = apperr.New(apperr.Conflict, "the requested interval is no longer available")
	ErrConcurrentUpdate   = apperr.New(apperr.Conflict, "booking was modified concurrently")
	ErrInvalidTransition  = apperr.New(apperr.InvalidTransition, "transition not allowed from the current status")
	ErrNotPayable         = apperr.New(apperr.InvalidTransition, "booking can no longer be marked paid")
	ErrCancellationWindow = apperr.New(apperr.CancellationWindowExpired, "cancellation window has passed")
	ErrForbidden          = apperr.New(apperr.Forbidden, "not allowed to act on this booking")
)

// Postgres codes raised when the exclusion constraint or serializable
// isolation rejects a write that raced past the application checks.
const (
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

func translateDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation, pgSerializationFailure, pgUniqueViolation:
			return apperr.Wrap(ErrSlotTaken, err)
		}
	}
	return err
}
