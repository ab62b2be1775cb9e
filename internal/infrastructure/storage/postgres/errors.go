package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
)

// SQLSTATE codes that mean "another writer won the race".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

// TranslateError maps lost-race postgres failures to ConcurrentModification
// and dangling references to NotFound. Application errors and anything
// unrecognised pass through unchanged.
func TranslateError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return apperror.NewConcurrentModification(tableEntity(pgErr.TableName), pgErr.ConstraintName).
			WithDetail("sqlstate", pgErr.Code).
			WithCause(err)
	case codeForeignKeyViolation:
		return apperror.NewNotFound(tableEntity(pgErr.TableName), pgErr.ConstraintName).
			WithDetail("sqlstate", pgErr.Code).
			WithCause(err)
	}
	return err
}

func tableEntity(table string) string {
	switch table {
	case TableInventory:
		return "InventoryEntry"
	case TableMovements:
		return "MovementRecord"
	case "":
		return "Transaction"
	default:
		return table
	}
}
