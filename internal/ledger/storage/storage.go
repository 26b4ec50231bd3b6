package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/ledger"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open builds the ledger.Store for backend. For the file and sqlite backends
// target is a path; for postgres it is a connection string.
func Open(ctx context.Context, backend, target string) (ledger.Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(target)
	case BackendSQLite:
		return NewSQLiteStorage(ctx, target)
	case BackendPostgres:
		return NewPostgresStorage(ctx, target)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", backend)
	}
}

// SQLStorage keeps positions in a single table. Both drivers accept $n
// placeholders, so the statements are shared.
type SQLStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(ctx context.Context, path string) (*SQLStorage, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStorage(ctx, db)
}

func NewPostgresStorage(ctx context.Context, connStr string) (*SQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newSQLStorage(ctx, db)
}

func newSQLStorage(ctx context.Context, db *sql.DB) (*SQLStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStorage{db: db}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return s, nil
}

// Load implements ledger.Store interface
func (s *SQLStorage) Load(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, quantity FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol, quantity string
		if err := rows.Scan(&symbol, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		qty, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to parse quantity for %s: %w", symbol, err)
		}
		positions[symbol] = qty
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// Save implements ledger.Store interface
func (s *SQLStorage) Save(ctx context.Context, positions map[string]decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	now := time.Now().UTC()
	for symbol, qty := range positions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO positions (symbol, quantity, updated_at) VALUES ($1, $2, $3)`,
			symbol, qty.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to save position %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit positions: %w", err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStorage) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			symbol VARCHAR(64) PRIMARY KEY,
			quantity TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}
