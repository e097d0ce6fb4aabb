package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/televibecode/televibe/internal/errs"
)

// Store is the Component A persistent store, backed by a pure-Go SQLite
// driver so the binary never needs cgo.
type Store struct {
	db *sql.DB
}

// Open connects to (and if necessary creates) the database at path, applies
// the schema and any pending migrations, and enables foreign-key
// enforcement.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Fatal("store.Open", "open database", err)
	}
	db.SetMaxOpenConns(1) // WAL + single-writer keeps SQLite happy under concurrent goroutines

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Fatal("store.Open", "apply schema", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		db.Close()
		return nil, errs.Fatal("store.Open", "apply indexes", err)
	}
	runMigrations(db)

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }
