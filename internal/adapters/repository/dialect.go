package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Dialect names a supported SQL backend.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// Open opens and pings a database for the named driver.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", d, err)
	}
	if d == DialectSQLite {
		// modernc sqlite serializes writers; one connection keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", d, err)
	}
	return db, d, nil
}

// Rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IDColumn is the auto-incrementing primary key column type.
func (d Dialect) IDColumn() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// schema returns the DDL statements, one per Exec.
func (d Dialect) schema() []string {
	id := d.IDColumn()
	return []string{
		`CREATE TABLE IF NOT EXISTS teams (
	id ` + id + `,
	name TEXT NOT NULL,
	color TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS services (
	id ` + id + `,
	team_id BIGINT NOT NULL REFERENCES teams(id),
	name TEXT NOT NULL,
	check_name TEXT NOT NULL DEFAULT '',
	points INTEGER NOT NULL,
	UNIQUE (team_id, name)
)`,
		`CREATE TABLE IF NOT EXISTS rounds (
	id ` + id + `,
	number INTEGER NOT NULL UNIQUE,
	round_start BIGINT NOT NULL DEFAULT 0,
	round_end BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS checks (
	id ` + id + `,
	service_id BIGINT NOT NULL REFERENCES services(id),
	round_id BIGINT NOT NULL REFERENCES rounds(id),
	round_number INTEGER NOT NULL,
	result BOOLEAN NOT NULL,
	completed BOOLEAN NOT NULL,
	UNIQUE (service_id, round_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_round_number ON checks (round_number)`,
		`CREATE TABLE IF NOT EXISTS scores (
	team_id BIGINT NOT NULL,
	round_number INTEGER NOT NULL,
	score BIGINT NOT NULL,
	PRIMARY KEY (team_id, round_number)
)`,
	}
}
