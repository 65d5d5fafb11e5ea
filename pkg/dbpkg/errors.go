package dbpkg

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the repositories react to.
const (
	CodeForeignKeyViolation  = "23503"
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeAdminShutdown        = "57P01"
	CodeCannotConnectNow     = "57P03"

	classConnectionException = "08"
)

// Code returns the SQLSTATE of a postgres error produced by lib/pq or pgx, or "" otherwise.
func Code(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

// Constraint returns the name of the violated constraint, or "" if there is none.
func Constraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}

	return ""
}

// IsConflict reports whether err is a serialization failure or a deadlock that is safe to retry.
func IsConflict(err error) bool {
	switch Code(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}

	return false
}

// IsUnavailable reports whether err means the database could not be reached.
func IsUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	code := Code(err)
	if strings.HasPrefix(code, classConnectionException) || code == CodeAdminShutdown || code == CodeCannotConnectNow {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

// Classify maps err to conflict when retrying the transaction may succeed, to unavailable
// when the database could not be reached, and to other otherwise.
func Classify(err, conflict, unavailable, other error) error {
	switch {
	case IsConflict(err):
		return conflict
	case IsUnavailable(err):
		return unavailable
	default:
		return other
	}
}
