package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// dsn applies the pragmas per connection, so every connection in the pool
// gets them and not just the first.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, SQLiteBusyTimeoutMS)
}

// Open opens a SQLite database at path with WAL, foreign keys and a busy
// timeout. A nil log operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if path == "" {
		return nil, errors.WithHint(errors.New("database path is empty"), "set [database] path in am.toml")
	}
	if log != nil {
		log.Debugw("opening database", logger.FieldPath, path)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	// sql.Open is lazy; surface a bad path here rather than on first query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database %s", path)
	}

	if log != nil {
		log.Infow("database opened",
			logger.FieldPath, path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}
	return db, nil
}

// OpenWithMigrations opens path and applies every pending migration.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}
