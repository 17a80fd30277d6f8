package persistence

import (
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapError converts pgx errors into domain sentinels and wraps the rest with
// the failing operation.
func mapError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return records.ErrNotFound
	case isUniqueViolation(err):
		return records.ErrDuplicate
	}
	return gerrors.Wrap(err, op)
}
