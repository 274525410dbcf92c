package postgres

import (
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolationErrCode = "23505"

// isUniqueViolationError reports whether err is a postgres unique
// constraint violation. The short_code uniqueness constraint is the
// real guarantee against concurrent allocators landing on the same
// code; the existence check in the service is only an optimization.
func isUniqueViolationError(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.SQLState() == uniqueViolationErrCode
}
