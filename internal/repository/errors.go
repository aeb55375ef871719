// Package repository implements the MySQL persistence layer.  Every
// repository wraps a *sql.DB and issues plain SQL with `?` placeholders.
// The sentinel values below let higher layers tell failure scenarios apart
// without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup or a conditional update matches no
// row.  It replaces sql.ErrNoRows at the repository boundary.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key, such as
// a second registration for the same (user, week) or an existing email.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent records, e.g. deleting a restaurant that is still
// assigned to registrants.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is MySQL's ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique key violation.  The SQLite
// message check keeps the repositories usable against the in-memory
// database the tests run on.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// notFound maps sql.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
