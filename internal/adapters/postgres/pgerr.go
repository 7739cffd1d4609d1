// Package postgres holds the shared error-mapping helper used by
// every per-entity Postgres adapter under its subpackages, grounded
// on the teacher's services.ValidatePGError (ledger_two's
// adapters/implementation/database/postgres/portfolio.postgresql.go).
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/escrowcore/ledgercore/internal/apperrors"
)

// Postgres SQLSTATE codes this adapter layer distinguishes.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// MapError translates a raw database/sql error into the typed
// apperrors taxonomy so callers never see a bare *pgconn.PgError,
// mirroring the teacher's ValidatePGError dispatch on SQLSTATE.
func MapError(err error, entityType string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return apperrors.ConflictError{
			Code:    apperrors.CodeDuplicateEntry,
			Message: entityType + ": duplicate entry",
			Details: map[string]any{"constraint": pgErr.ConstraintName},
		}
	case sqlStateForeignKeyViolation, sqlStateCheckViolation:
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidAmount,
			Message: entityType + ": constraint violation: " + pgErr.Message,
		}
	default:
		return err
	}
}
