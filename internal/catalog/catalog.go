// Package catalog is the rotation bookkeeping companion to §4.11's
// file rotation: a small SQLite table recording each output file's
// path, open/close time and the sources active in it, so the
// out-of-scope post-hoc CSV extractors have something to query instead
// of re-scanning every MessagePack file's Name/ChannelMap header.
//
// Grounded on the teacher's internal/repository package: sqlx for
// query execution, squirrel for statement building, sqlhooks for query
// timing, go-sqlite3 as the driver, golang-migrate for schema setup.
package catalog

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Catalog owns the rotation-bookkeeping database connection.
type Catalog struct {
	db *sqlx.DB
}

// Open connects to (creating if absent) the SQLite database at path and
// applies any pending migrations.
func Open(path string, log *logging.Logger) (*Catalog, error) {
	driverName := fmt.Sprintf("sqlite3-catalog-%d", time.Now().UnixNano())
	sql.Register(driverName, sqlhooks.Wrap(&sqlite.SQLiteDriver{}, &queryHooks{log: log.Debugf}))

	db, err := sqlx.Open(driverName, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite does not benefit from concurrent writers

	if err := migrateSchema(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Catalog{db: db}, nil
}

func migrateSchema(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// RecordOpen inserts a new rotation row for a just-opened output file.
func (c *Catalog) RecordOpen(path string, opened time.Time, sources []string) error {
	q, args, err := sq.Insert("rotations").
		Columns("path", "opened_at", "sources").
		Values(path, opened.Unix(), strings.Join(sources, ",")).
		ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.Exec(q, args...)
	return err
}

// RecordClose stamps the close time of a previously opened rotation.
func (c *Catalog) RecordClose(path string, closed time.Time) error {
	q, args, err := sq.Update("rotations").
		Set("closed_at", closed.Unix()).
		Where(sq.Eq{"path": path}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.Exec(q, args...)
	return err
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}
