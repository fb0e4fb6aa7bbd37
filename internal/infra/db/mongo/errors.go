package mongo

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"stayhub/internal/domain/shared/apperr"
)

var ErrDuplicateID = fmt.Errorf("%w: mongo: duplicate id", apperr.ErrConflict)

// mapWriteErr turns unique index violations into dup and transaction write
// conflicts into ErrPersistenceRace. dup may be nil.
func mapWriteErr(err error, dup error) error {
	if err == nil {
		return nil
	}
	if dup != nil && mongo.IsDuplicateKeyError(err) {
		return dup
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(112)) {
		return fmt.Errorf("%w: mongo: %v", apperr.ErrPersistenceRace, err)
	}
	return err
}
