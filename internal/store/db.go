package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name      string
	CreateSQL string
	GetSQL    string
	LockSQL   string // read inside the update transaction
	UpsertSQL string

	// KeyLockSQL, when set, runs first in the update transaction and holds a
	// lock on the key until commit, covering keys with no row yet.
	KeyLockSQL string
}

var (
	PostgresDialect = Dialect{
		Name: "postgres",
		CreateSQL: `CREATE TABLE IF NOT EXISTS documents (
			name       TEXT PRIMARY KEY,
			body       BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		GetSQL:  `SELECT body FROM documents WHERE name = $1`,
		LockSQL: `SELECT body FROM documents WHERE name = $1 FOR UPDATE`,
		UpsertSQL: `INSERT INTO documents (name, body, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		KeyLockSQL: `SELECT pg_advisory_xact_lock(hashtext($1))`,
	}

	// SQLite opens write transactions with _txlock=immediate, which already
	// serializes writers, so it needs no KeyLockSQL.
	SQLiteDialect = Dialect{
		Name: "sqlite",
		CreateSQL: `CREATE TABLE IF NOT EXISTS documents (
			name       TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		GetSQL:  `SELECT body FROM documents WHERE name = ?`,
		LockSQL: `SELECT body FROM documents WHERE name = ?`,
		UpsertSQL: `INSERT INTO documents (name, body, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
	}
)

// DB stores values in a single documents table.
type DB struct {
	Client  *sql.DB
	dialect Dialect
}

var _ KV = (*DB)(nil)

// NewDB wraps an open connection. It does not create the table; see Migrate.
func NewDB(client *sql.DB, dialect Dialect) *DB {
	return &DB{Client: client, dialect: dialect}
}

// NewPostgres creates a Postgres connection using pgx with sane defaults.
func NewPostgres(ctx context.Context, connString string) (*DB, error) {
	client, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	client.SetMaxOpenConns(10)
	client.SetMaxIdleConns(5)
	client.SetConnMaxLifetime(time.Hour)
	return setup(ctx, NewDB(client, PostgresDialect))
}

// NewSQLite opens (creating if needed) a SQLite file database.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating sqlite directory")
		}
	}
	client, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	client.SetMaxOpenConns(1)
	return setup(ctx, NewDB(client, SQLiteDialect))
}

func setup(ctx context.Context, db *DB) (*DB, error) {
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "pinging %s", db.dialect.Name)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the documents table if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, d.dialect.CreateSQL); err != nil {
		return errors.Wrap(err, "creating documents table")
	}
	return nil
}

// Get returns ErrKeyNotFound when no row exists.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	if err := d.Client.QueryRowContext(ctx, d.dialect.GetSQL, key).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return body, nil
}

// Update reads the row under a transaction lock, applies fn and upserts the result.
func (d *DB) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	tx, err := d.Client.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if d.dialect.KeyLockSQL != "" {
		if _, err = tx.ExecContext(ctx, d.dialect.KeyLockSQL, key); err != nil {
			return errors.Wrapf(err, "locking key %s", key)
		}
	}

	var cur []byte
	if err = tx.QueryRowContext(ctx, d.dialect.LockSQL, key).Scan(&cur); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "locking %s", key)
		}
		cur = nil
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, d.dialect.UpsertSQL, key, next); err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Client.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
