package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rampart/internal/adapters/repository"
)

// Change is one entry of the settings ledger.
type Change struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ChangedAt time.Time `json:"changed_at"`
}

// SQLSource keeps settings as an append-only ledger. Every Set inserts a row and
// the row with the highest id wins, so past values are never overwritten.
type SQLSource struct {
	db      *sql.DB
	dialect repository.Dialect
	now     func() time.Time
}

// NewSQLSource wraps db and creates the settings table if needed.
func NewSQLSource(ctx context.Context, db *sql.DB, dialect repository.Dialect) (*SQLSource, error) {
	s := &SQLSource{db: db, dialect: dialect, now: time.Now}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS settings (
	id ` + dialect.IDColumn() + `,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	changed_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_settings_name ON settings (name, id)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate settings: %w", err)
		}
	}
	return s, nil
}

// Get returns the newest value recorded for name.
func (s *SQLSource) Get(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT value FROM settings WHERE name = ? ORDER BY id DESC LIMIT 1`), name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load setting %s: %w", name, err)
	}
	return v, true, nil
}

// Set appends a new value for name.
func (s *SQLSource) Set(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO settings (name, value, changed_at) VALUES (?, ?, ?)`),
		name, value, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record setting %s: %w", name, err)
	}
	return nil
}

// History returns every recorded value of name, oldest first.
func (s *SQLSource) History(ctx context.Context, name string) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.Rebind(`SELECT id, name, value, changed_at FROM settings WHERE name = ? ORDER BY id`), name)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Change
	for rows.Next() {
		var (
			c  Change
			ms int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Value, &ms); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		c.ChangedAt = time.UnixMilli(ms).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
