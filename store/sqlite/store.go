// Package sqlite implements the record store on SQLite through
// github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	entitlestore "github.com/xraph/entitle/store"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// connection settings a single-writer SQLite file needs. Call Migrate
// before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("entitle/sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("entitle/sqlite: connect: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("entitle/sqlite: %s: %w", pragma, err)
		}
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies pending migrations in version order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS entitle_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM entitle_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("entitle/sqlite: check migration %s: %w", m.Name, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("entitle/sqlite: begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("entitle/sqlite: migration %s failed: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entitle_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("entitle/sqlite: record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("entitle/sqlite: commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context) (map[string]*entitlement.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_key, packs, subscription_active, bundle, last_updated FROM entitle_records`)
	if err != nil {
		return nil, fmt.Errorf("entitle/sqlite: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*entitlement.Record)
	for rows.Next() {
		key, r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entitle/sqlite: load: %w", err)
	}
	return out, nil
}

// Save upserts every supplied record in one transaction.
func (s *Store) Save(ctx context.Context, records map[string]*entitlement.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: begin save: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entitle_records (client_key, packs, subscription_active, bundle, last_updated)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (client_key) DO UPDATE SET
    packs = excluded.packs,
    subscription_active = excluded.subscription_active,
    bundle = excluded.bundle,
    last_updated = excluded.last_updated`)
	if err != nil {
		tx.Rollback() //nolint:errcheck // already failing
		return fmt.Errorf("entitle/sqlite: prepare save: %w", err)
	}
	defer stmt.Close()

	for key, r := range records {
		if r == nil {
			continue
		}
		packs, err := encodePacks(r.Packs)
		if err != nil {
			tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("entitle/sqlite: encode %s: %w", key, err)
		}
		_, err = stmt.ExecContext(ctx, key, packs, r.SubscriptionActive, r.Bundle,
			r.LastUpdated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("entitle/sqlite: save %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("entitle/sqlite: commit save: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, clientKey string) (*entitlement.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_key, packs, subscription_active, bundle, last_updated FROM entitle_records WHERE client_key = ?`,
		clientKey)
	_, r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entitlement.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (string, *entitlement.Record, error) {
	var (
		key, packs, updated string
		sub, bundle         bool
	)
	if err := row.Scan(&key, &packs, &sub, &bundle, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("entitle/sqlite: scan: %w", err)
	}

	r := &entitlement.Record{SubscriptionActive: sub, Bundle: bundle}
	if err := json.Unmarshal([]byte(packs), &r.Packs); err != nil {
		return "", nil, fmt.Errorf("entitle/sqlite: decode packs for %s: %w", key, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return "", nil, fmt.Errorf("entitle/sqlite: decode last_updated for %s: %w", key, err)
	}
	r.LastUpdated = ts
	r.Normalize()
	return key, r, nil
}

func encodePacks(p []pack.ID) (string, error) {
	if p == nil {
		p = []pack.ID{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
