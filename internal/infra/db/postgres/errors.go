package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"stayhub/internal/domain/shared/apperr"
)

var ErrDuplicateID = fmt.Errorf("%w: postgres: duplicate id", apperr.ErrConflict)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	lockNotAvailable     = "55P03"
)

// mapErr turns unique violations into dup (when non-nil) and concurrency
// aborts into ErrPersistenceRace.
func mapErr(err error, dup error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		if dup != nil {
			return dup
		}
		return fmt.Errorf("%w: postgres: %s", apperr.ErrPersistenceRace, pqErr.Constraint)
	case serializationFailure, deadlockDetected, lockNotAvailable:
		return fmt.Errorf("%w: postgres: %s", apperr.ErrPersistenceRace, pqErr.Message)
	}
	return err
}
