package db

import (
	"strings"

	"github.com/teranos/healthtwin/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed, either
// as ErrDatabaseClosed or as the raw database/sql error, which carries no type
// to match on.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
