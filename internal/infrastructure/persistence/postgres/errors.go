package postgres

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/turtacn/authstore/pkg/errors"
)

// SQLSTATE codes signalling a transaction that lost against concurrent work.
var contentionCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled, raised by statement and lock timeouts
	"23505": {}, // unique_violation, a concurrent insert of the same natural key
}

// sqliteContention lists SQLite messages with the same meaning.
var sqliteContention = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"unique constraint failed",
}

// classifyError maps a driver error into the service taxonomy.
func classifyError(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound(message).WithCause(err)
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.ErrPersistenceContention(message + ": transaction deadline exceeded").WithCause(err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		if _, ok := contentionCodes[pgErr.Code]; ok {
			return errors.ErrPersistenceContention(message).
				WithCause(err).
				WithMetadata("sqlstate", pgErr.Code)
		}
		return errors.ErrInternal(message).WithCause(err).WithMetadata("sqlstate", pgErr.Code)
	}

	lower := strings.ToLower(err.Error())
	for _, fragment := range sqliteContention {
		if strings.Contains(lower, fragment) {
			return errors.ErrPersistenceContention(message).WithCause(err)
		}
	}

	return errors.ErrInternal(message).WithCause(err)
}
