package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"

	"rentpool/internal/app/uow"
)

const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError turns constraint and serialization failures into uow.ErrWriteConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeExclusionViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s (%s)", uow.ErrWriteConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}
