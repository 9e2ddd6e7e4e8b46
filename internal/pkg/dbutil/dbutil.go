package dbutil

import (
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
)

// Ext is what repos need to run queries; both *sqlx.DB and *sqlx.Tx
// satisfy it, so a service can move a set of repos into one transaction.
type Ext interface {
	sqlx.ExtContext
}

const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
