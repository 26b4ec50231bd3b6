package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrNegativeQuantity = errors.New("negative quantity")

// Ledger keeps the quantity held per symbol and writes every change through to the Store.
// A symbol that is absent is held at zero.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]decimal.Decimal
	store     Store
}

// Open seeds the ledger from store.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	saved, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	positions := make(map[string]decimal.Decimal, len(saved))
	for symbol, qty := range saved {
		if qty.IsNegative() {
			return nil, fmt.Errorf("%w: %s %s", ErrNegativeQuantity, symbol, qty)
		}
		if qty.IsZero() {
			continue
		}
		positions[symbol] = qty
	}

	return &Ledger{positions: positions, store: store}, nil
}

// Quantity returns the tracked quantity for symbol.
func (l *Ledger) Quantity(symbol string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[symbol]
}

// Has reports whether symbol has a tracked position.
func (l *Ledger) Has(symbol string) bool {
	return l.Quantity(symbol).IsPositive()
}

// Add increases the position by qty and persists. The in-memory change is
// kept even when persisting fails; the error is returned for the caller to log.
func (l *Ledger) Add(ctx context.Context, symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsNegative() {
		return l.Quantity(symbol), fmt.Errorf("%w: %s", ErrNegativeQuantity, qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.positions[symbol].Add(qty)
	if total.IsZero() {
		return total, nil
	}
	l.positions[symbol] = total
	return total, l.saveLocked(ctx)
}

// Remove clears the position for symbol and persists.
func (l *Ledger) Remove(ctx context.Context, symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.positions, symbol)
	return l.saveLocked(ctx)
}

// Persist writes the current snapshot.
func (l *Ledger) Persist(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked(ctx)
}

func (l *Ledger) saveLocked(ctx context.Context) error {
	if err := l.store.Save(ctx, l.copyLocked()); err != nil {
		return fmt.Errorf("failed to save positions: %w", err)
	}
	return nil
}

// Snapshot returns a copy of all tracked positions.
func (l *Ledger) Snapshot() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

func (l *Ledger) copyLocked() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.positions))
	for symbol, qty := range l.positions {
		out[symbol] = qty
	}
	return out
}

// Symbols returns the tracked symbols in sorted order.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
