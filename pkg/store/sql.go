package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// SQLBackend stores values in a kv_entries table on PostgreSQL or MySQL.
type SQLBackend struct {
	db      *sql.DB
	dialect string
}

// OpenSQL opens a PostgreSQL ("postgres") or MySQL ("mysql") database and
// creates the kv_entries table if it is missing.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLBackend, error) {
	if dialect != "postgres" && dialect != "mysql" {
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
	sqlDB, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(4)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	b := &SQLBackend{db: sqlDB, dialect: dialect}
	if _, err := sqlDB.ExecContext(ctx, b.createTableSQL()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create kv_entries: %w", err)
	}
	return b, nil
}

func (b *SQLBackend) createTableSQL() string {
	if b.dialect == "mysql" {
		return "CREATE TABLE IF NOT EXISTS kv_entries (k VARCHAR(191) PRIMARY KEY, v LONGBLOB NOT NULL, updated_at DATETIME(3) NOT NULL)"
	}
	return "CREATE TABLE IF NOT EXISTS kv_entries (k VARCHAR(191) PRIMARY KEY, v BYTEA NOT NULL, updated_at TIMESTAMPTZ NOT NULL)"
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	q := "SELECT v FROM kv_entries WHERE k = $1"
	if b.dialect == "mysql" {
		q = "SELECT v FROM kv_entries WHERE k = ?"
	}
	var v []byte
	err := b.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	q := "INSERT INTO kv_entries (k, v, updated_at) VALUES ($1, $2, $3) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = EXCLUDED.updated_at"
	if b.dialect == "mysql" {
		q = "INSERT INTO kv_entries (k, v, updated_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)"
	}
	_, err := b.db.ExecContext(ctx, q, key, value, time.Now().UTC())
	return err
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	q := "DELETE FROM kv_entries WHERE k = $1"
	if b.dialect == "mysql" {
		q = "DELETE FROM kv_entries WHERE k = ?"
	}
	_, err := b.db.ExecContext(ctx, q, key)
	return err
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
