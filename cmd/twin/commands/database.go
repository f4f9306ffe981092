package commands

import (
	"database/sql"

	"github.com/teranos/healthtwin/am"
	"github.com/teranos/healthtwin/db"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// openDatabase opens and migrates the database at dbPath, or at the
// configured path when dbPath is empty.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.ComponentLogger(logger.ComponentDB))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
