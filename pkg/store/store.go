// Package store persists run artifacts to SQLite: executed fills, periodic
// equity snapshots and saved backtest reports. Durability is best-effort;
// crash recovery of in-flight orders is out of scope.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the SQL handle for easier swapping/testing.
type Store struct {
	db *sql.DB
}

// FillRecord is one executed order fill.
type FillRecord struct {
	OrderID string
	Market  string
	Side    string
	Price   float64
	Size    float64
	PnL     float64
	At      time.Time
}

// Open opens (and creates if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			market TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			size REAL NOT NULL,
			pnl REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS equity_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			equity REAL NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS backtest_reports (
			name TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// RecordFill appends an executed fill.
func (s *Store) RecordFill(ctx context.Context, f FillRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (order_id, market, side, price, size, pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Market, f.Side, f.Price, f.Size, f.PnL, f.At,
	)
	return err
}

// RecordEquity appends an equity snapshot.
func (s *Store) RecordEquity(ctx context.Context, equity float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity_snapshots (equity, created_at) VALUES (?, ?)`,
		equity, at,
	)
	return err
}

// SaveBacktest upserts a serialized backtest report by strategy name.
func (s *Store) SaveBacktest(ctx context.Context, name string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_reports (name, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`,
		name, string(payload), time.Now(),
	)
	return err
}

// LoadBacktest retrieves a saved report; sql.ErrNoRows when absent.
func (s *Store) LoadBacktest(ctx context.Context, name string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM backtest_reports WHERE name = ?`, name,
	).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// RecentFills returns the latest n fills, newest first.
func (s *Store) RecentFills(ctx context.Context, n int) ([]FillRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, market, side, price, size, pnl, created_at
		FROM fills ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.OrderID, &f.Market, &f.Side, &f.Price, &f.Size, &f.PnL, &f.At); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
