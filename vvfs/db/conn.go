package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/tursodatabase/go-libsql"
)

// DriverName is the database/sql driver registered by go-libsql.
const DriverName = "libsql"

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("fact store is closed")

// ConnectToDB opens a libsql database. dsn may be a bare file path, a file:
// URL, or a remote libsql:// / http(s):// URL.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	if !strings.Contains(dsn, "://") && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	if local, ok := strings.CutPrefix(dsn, "file:"); ok {
		path := local
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if path != "" && !strings.HasPrefix(path, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, errors.Wrapf(err, "could not create database directory for %s", path)
			}
		}
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", dsn)
	}

	// A single connection keeps writes serialized for the embedded engine
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database %s", dsn)
	}
	return db, nil
}
