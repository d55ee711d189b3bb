package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps a database handle with the dialect it speaks
type DB struct {
	*sql.DB
	driver string
}

// NewDB opens the database and applies the schema
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported job store driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer avoids SQLITE_BUSY between pipeline goroutines
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Driver returns the dialect name.
func (db *DB) Driver() string {
	return db.driver
}

// rebind converts $N placeholders to ? for sqlite. Queries must use each
// placeholder once and in order.
func (db *DB) rebind(query string) string {
	if db.driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) migrate(ctx context.Context) error {
	eventID := "BIGSERIAL PRIMARY KEY"
	timeType := "TIMESTAMPTZ"
	if db.driver == DriverSQLite {
		eventID = "INTEGER PRIMARY KEY AUTOINCREMENT"
		timeType = "TIMESTAMP"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			app_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			template TEXT NOT NULL DEFAULT '',
			source_path TEXT NOT NULL DEFAULT '',
			created_at ` + timeType + ` NOT NULL,
			updated_at ` + timeType + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
		`CREATE TABLE IF NOT EXISTS job_events (
			id ` + eventID + `,
			job_id TEXT NOT NULL,
			at ` + timeType + ` NOT NULL,
			from_status TEXT,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS job_events_job_idx ON job_events (job_id)`,
		`CREATE TABLE IF NOT EXISTS job_artifacts (
			job_id TEXT NOT NULL,
			type TEXT NOT NULL,
			uri TEXT NOT NULL,
			created_at ` + timeType + ` NOT NULL,
			PRIMARY KEY (job_id, type)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
