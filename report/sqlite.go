package report

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB is an export database holding the fingerprints of one or more runs
type DB struct {
	db *sqlx.DB
}

// OpenDB opens or creates the export database at path, and applies all migrations
func OpenDB(ctx context.Context, path string) (*DB, error) {
	sqliteDatabase, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening export database: %w", err)
	}

	db := &DB{db: sqliteDatabase}

	err = db.migrate(ctx)
	if err != nil {
		db.db.Close()
		return nil, fmt.Errorf("migrating export database: %w", err)
	}
	return db, nil
}

// Close closes the underlying database
func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
id varchar(36) PRIMARY KEY,
host text NOT NULL,
username text NOT NULL,
started datetime NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS fingerprints (
run_id varchar(36) NOT NULL REFERENCES runs(id),
folder text NOT NULL,
uid int NOT NULL,
fingerprint char(64) NOT NULL,
PRIMARY KEY (run_id, folder, uid)
);`,
		`CREATE INDEX IF NOT EXISTS fingerprints_fingerprint ON fingerprints(fingerprint);`,
	}

	for _, m := range migrations {
		_, err := db.db.ExecContext(ctx, m)
		if err != nil {
			return err
		}
	}
	return nil
}

// AddRun stores run and all of its fingerprints in a single transaction
func (db *DB) AddRun(ctx context.Context, run Run) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, host, username, started) VALUES (?, ?, ?, ?)`,
		run.ID.String(), run.Host, run.Username, run.Started.UTC())
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO fingerprints (run_id, folder, uid, fingerprint) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range run.Mapping.Keys() {
		_, err = stmt.ExecContext(ctx, run.ID.String(), k.Folder, k.UID, run.Mapping[k].String())
		if err != nil {
			return fmt.Errorf("inserting fingerprint for %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// WriteSQLite appends run to the export database at path
func WriteSQLite(ctx context.Context, path string, run Run) error {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.AddRun(ctx, run)
}
