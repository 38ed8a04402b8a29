// Package postgres implements the record store on PostgreSQL through
// github.com/jackc/pgx/v5.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	entitlestore "github.com/xraph/entitle/store"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// Connect opens a pool for dsn. The returned store owns the pool.
func Connect(ctx context.Context, dsn, schema string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("entitle/postgres: connect: %w", err)
	}
	return New(pool, schema), nil
}

// New wraps an existing pool. An empty schema means "public".
func New(pool *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pool: pool, schema: s}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) recordsTable() string    { return s.schema + ".entitle_records" }
func (s *Store) migrationsTable() string { return s.schema + ".entitle_migrations" }

// Migrate applies pending migrations in version order.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+s.schema); err != nil {
		return fmt.Errorf("entitle/postgres: create schema: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+s.migrationsTable()+` (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("entitle/postgres: create migrations table: %w", err)
	}

	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var applied bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM `+s.migrationsTable()+` WHERE version = $1)`, m.Version).Scan(&applied)
			if err != nil || applied {
				return err
			}
			if _, err := tx.Exec(ctx, strings.ReplaceAll(m.SQL, "{{table}}", s.recordsTable())); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO `+s.migrationsTable()+` (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("entitle/postgres: migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Load(ctx context.Context) (map[string]*entitlement.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client_key, packs, subscription_active, bundle, last_updated FROM `+s.recordsTable())
	if err != nil {
		return nil, fmt.Errorf("entitle/postgres: load: %w", err)
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
		return nil, fmt.Errorf("entitle/postgres: load: %w", err)
	}
	return out, nil
}

// Save upserts every supplied record in one batch inside a transaction.
func (s *Store) Save(ctx context.Context, records map[string]*entitlement.Record) error {
	query := `
INSERT INTO ` + s.recordsTable() + ` (client_key, packs, subscription_active, bundle, last_updated)
VALUES ($1, $2::jsonb, $3, $4, $5)
ON CONFLICT (client_key) DO UPDATE SET
    packs = EXCLUDED.packs,
    subscription_active = EXCLUDED.subscription_active,
    bundle = EXCLUDED.bundle,
    last_updated = EXCLUDED.last_updated`

	batch := &pgx.Batch{}
	for key, r := range records {
		if r == nil {
			continue
		}
		packs, err := encodePacks(r.Packs)
		if err != nil {
			return fmt.Errorf("entitle/postgres: encode %s: %w", key, err)
		}
		batch.Queue(query, key, packs, r.SubscriptionActive, r.Bundle, r.LastUpdated.UTC())
	}
	if batch.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("entitle/postgres: save: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, clientKey string) (*entitlement.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT client_key, packs, subscription_active, bundle, last_updated FROM `+s.recordsTable()+` WHERE client_key = $1`,
		clientKey)
	_, r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entitlement.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func scanRecord(row pgx.Row) (string, *entitlement.Record, error) {
	var (
		key     string
		packs   []byte
		sub     bool
		bundle  bool
		updated time.Time
	)
	if err := row.Scan(&key, &packs, &sub, &bundle, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("entitle/postgres: scan: %w", err)
	}

	r := &entitlement.Record{SubscriptionActive: sub, Bundle: bundle, LastUpdated: updated}
	if err := json.Unmarshal(packs, &r.Packs); err != nil {
		return "", nil, fmt.Errorf("entitle/postgres: decode packs for %s: %w", key, err)
	}
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
