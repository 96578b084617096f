package data

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverName  = "sqlite"
	dsnPragmas  = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	timeLayout  = "2006-01-02T15:04:05.000000000Z07:00"
	listDefault = 100
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Init creates the database file at dbFilePath when needed and applies the schema.
// Applying the schema is idempotent.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return errors.Wrapf(err, "error opening database: %s", dbFilePath)
	}
	defer db.Close()

	slog.Debug("applying db schema", "path", dbFilePath)
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.Exec(string(b)); err != nil {
		return errors.Wrapf(err, "failed to create database schema in: %s", dbFilePath)
	}
	slog.Debug("db schema applied")

	return nil
}

// GetDB opens the SQLite database at path.
func GetDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("path not specified")
	}
	conn, err := sql.Open(driverName, path+dsnPragmas)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	return conn, nil
}

// SchemaVersion returns the highest applied schema version.
func SchemaVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to query schema version")
	}
	return v, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return listDefault
	}
	return limit
}
