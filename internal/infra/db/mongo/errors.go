package mongo

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"rentpool/internal/app/uow"
)

const (
	codeWriteConflict      = 112
	labelTransientConflict = "TransientTransactionError"
)

// mapError folds duplicate keys and transaction write conflicts into
// uow.ErrWriteConflict so callers can retry.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", uow.ErrWriteConflict, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel(labelTransientConflict)) {
		return fmt.Errorf("%w: %v", uow.ErrWriteConflict, err)
	}
	return err
}
