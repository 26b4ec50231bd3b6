package trading

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange defines the raw venue operations. Every call may fail transiently.
type Exchange interface {
	// MarketBuy spends cost (quote currency) on symbol and returns the filled base quantity
	MarketBuy(ctx context.Context, symbol string, cost decimal.Decimal, clientOrderID string) (decimal.Decimal, error)

	// MarketSell sells qty (base currency) of symbol and returns the filled base quantity
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (decimal.Decimal, error)

	// Balance retrieves the free balance of the symbol's base asset
	Balance(ctx context.Context, symbol string) (decimal.Decimal, error)

	// BidPrice retrieves the best bid for symbol
	BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// MinNotional retrieves the minimum order value accepted for symbol
	MinNotional(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Ping checks connectivity with the venue
	Ping(ctx context.Context) error
}

// Gateway is the executor's view of the venue. A false second return value
// means the operation did not happen and no state may be mutated.
type Gateway interface {
	MarketBuy(ctx context.Context, symbol string, cost decimal.Decimal, clientOrderID string) (decimal.Decimal, bool)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (decimal.Decimal, bool)
	Balance(ctx context.Context, symbol string) (decimal.Decimal, bool)
	BidPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
	MinNotional(ctx context.Context, symbol string) (decimal.Decimal, bool)
	Ping(ctx context.Context) bool
}
