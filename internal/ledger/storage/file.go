package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
)

// FileStore keeps positions as a flat JSON object, e.g. {"BTC/USDT": 0.5}.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("positions file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create positions directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements ledger.Store interface
func (s *FileStore) Load(_ context.Context) (map[string]decimal.Decimal, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]decimal.Decimal{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read positions file: %w", err)
	}
	if len(data) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	positions := make(map[string]decimal.Decimal)
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions file: %w", err)
	}
	return positions, nil
}

// Save implements ledger.Store interface. The file is replaced through a
// rename so a reader never sees a half-written document.
func (s *FileStore) Save(_ context.Context, positions map[string]decimal.Decimal) error {
	doc := make(map[string]json.Number, len(positions))
	for symbol, qty := range positions {
		doc[symbol] = json.Number(qty.String())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write positions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close positions file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace positions file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
