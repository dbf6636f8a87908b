package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		slog.Debug("running migration", "file", entry.Name())

		if _, err := db.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Tx bundles the repositories bound to one transaction.
type Tx struct {
	Samples  *SamplesRepository
	Settings *SettingsRepository
}

// InTx runs fn inside a transaction. Any error returned by fn rolls back every
// write made through the Tx repositories.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{
		Samples:  &SamplesRepository{q: sqlTx},
		Settings: &SettingsRepository{q: sqlTx},
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type DBStats struct {
	SamplesCount         int64 `json:"samples_count"`
	NotificationRowCount int64 `json:"notification_rows_count"`
	SettingsCount        int64 `json:"settings_count"`
	SizeBytes            int64 `json:"size_bytes"`
}

func (db *DB) Stats(ctx context.Context) (*DBStats, error) {
	var stats DBStats

	row := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM metric_samples WHERE notified = 0")
	if err := row.Scan(&stats.SamplesCount); err != nil {
		return nil, err
	}

	row = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM metric_samples WHERE notified = 1")
	if err := row.Scan(&stats.NotificationRowCount); err != nil {
		return nil, err
	}

	row = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM settings")
	if err := row.Scan(&stats.SettingsCount); err != nil {
		return nil, err
	}

	row = db.conn.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&stats.SizeBytes); err != nil {
		stats.SizeBytes = 0
	}

	return &stats, nil
}

// Cleanup prunes samples of every type recorded before now-retention.
func (db *DB) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)

	deleted, err := db.Samples().Delete(ctx, "", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup samples: %w", err)
	}

	if deleted > 0 {
		if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
			slog.Warn("failed to vacuum database", "error", err)
		}
	}

	return deleted, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Samples() *SamplesRepository {
	return &SamplesRepository{q: db.conn}
}

func (db *DB) Settings() *SettingsRepository {
	return &SettingsRepository{q: db.conn}
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
