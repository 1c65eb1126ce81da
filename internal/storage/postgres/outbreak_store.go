// Package postgres provides the Postgres-backed outbreak store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

const (
	defaultTable       = "outbreaks"
	uniqueViolationSQL = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// OutbreakStore persists outbreak records in Postgres. It implements outbreak.Store.
type OutbreakStore struct {
	pool  pgxPool
	table string
}

// NewOutbreakStore connects a pool using cfg.
func NewOutbreakStore(ctx context.Context, cfg StoreConfig) (*OutbreakStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OutbreakStore{pool: pool, table: table}, nil
}

// NewOutbreakStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewOutbreakStoreWithPool(pool pgxPool, table string) (*OutbreakStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &OutbreakStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Migrate creates the outbreak table and its indexes when missing.
func (s *OutbreakStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	date         TEXT NOT NULL,
	published_on DATE,
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL UNIQUE,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_published_on_idx ON %[1]s (published_on DESC NULLS LAST, created_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *OutbreakStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *OutbreakStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const selectColumns = `id, title, date, published_on, content, content_hash, url, created_at`

func (s *OutbreakStore) orderBy() string {
	return "ORDER BY published_on DESC NULLS LAST, created_at DESC"
}

// FindByURL returns the record stored for url or outbreak.ErrNotFound.
func (s *OutbreakStore) FindByURL(ctx context.Context, url string) (outbreak.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, selectColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, url))
	if err != nil {
		return outbreak.Record{}, notFound(err, "find outbreak by url")
	}
	return rec, nil
}

// Latest returns the most recently dated record or outbreak.ErrNotFound.
func (s *OutbreakStore) Latest(ctx context.Context) (outbreak.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s %s LIMIT 1`, selectColumns, s.table, s.orderBy())
	rec, err := scanRecord(s.pool.QueryRow(ctx, query))
	if err != nil {
		return outbreak.Record{}, notFound(err, "latest outbreak")
	}
	return rec, nil
}

// Get returns the record with id or outbreak.ErrNotFound.
func (s *OutbreakStore) Get(ctx context.Context, id string) (outbreak.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return outbreak.Record{}, notFound(err, "get outbreak")
	}
	return rec, nil
}

// List returns records newest first. A non-positive limit returns everything.
func (s *OutbreakStore) List(ctx context.Context, limit, offset int) ([]outbreak.Record, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s LIMIT $1 OFFSET $2`, selectColumns, s.table, s.orderBy())
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list outbreaks: %w", err)
	}
	defer rows.Close()

	records := []outbreak.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbreak row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbreaks: %w", err)
	}
	return records, nil
}

// InsertBatch writes all records in one transaction. Any failure rolls the
// whole batch back.
func (s *OutbreakStore) InsertBatch(ctx context.Context, records []outbreak.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	title,
	date,
	published_on,
	content,
	content_hash,
	url,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbreak batch: %w", err)
	}
	for _, r := range records {
		if r.ID == "" || r.URL == "" {
			rollback(ctx, tx)
			return fmt.Errorf("insert outbreak: id and url are required")
		}
		_, err := tx.Exec(ctx, query,
			r.ID,
			r.Title,
			r.Date,
			r.PublishedOn,
			r.Content,
			r.ContentHash,
			r.URL,
			r.CreatedAt,
		)
		if err != nil {
			rollback(ctx, tx)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQL {
				return fmt.Errorf("insert outbreak %s: %w", r.URL, outbreak.ErrDuplicateURL)
			}
			return fmt.Errorf("insert outbreak %s: %w", r.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outbreak batch: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx) //nolint:errcheck // the insert error is the one worth reporting
}

func scanRecord(row pgx.Row) (outbreak.Record, error) {
	var (
		rec       outbreak.Record
		published *time.Time
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Date,
		&published,
		&rec.Content,
		&rec.ContentHash,
		&rec.URL,
		&rec.CreatedAt,
	); err != nil {
		return outbreak.Record{}, err //nolint:wrapcheck // callers wrap
	}
	rec.PublishedOn = published
	return rec, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return outbreak.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
