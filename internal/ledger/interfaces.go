package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists the full symbol -> quantity mapping
type Store interface {
	// Load returns the last saved mapping, empty when nothing was saved yet
	Load(ctx context.Context) (map[string]decimal.Decimal, error)

	// Save replaces the stored mapping with positions
	Save(ctx context.Context, positions map[string]decimal.Decimal) error

	// Close releases the underlying handle
	Close() error
}
