package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading"
)

// Exchange implements trading.Exchange against Binance spot
type Exchange struct {
	client *binance.Client

	mu          sync.RWMutex
	minNotional map[string]decimal.Decimal // 按交易对缓存的最小下单金额
}

// NewExchange creates a new Binance spot client
func NewExchange(apiKey, secretKey string, testnet bool) *Exchange {
	if testnet {
		binance.UseTestnet = true
	}

	return &Exchange{
		client:      binance.NewClient(apiKey, secretKey),
		minNotional: make(map[string]decimal.Decimal),
	}
}

// MarketBuy places a market buy sized by quote currency cost
func (e *Exchange) MarketBuy(ctx context.Context, symbol string, cost decimal.Decimal, clientOrderID string) (decimal.Decimal, error) {
	service := e.client.NewCreateOrderService().
		Symbol(trading.VenueSymbol(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(cost.String())

	filled, err := e.place(ctx, service, symbol, clientOrderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to place market buy: %w", err)
	}
	return filled, nil
}

// MarketSell places a market sell of qty base currency
func (e *Exchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (decimal.Decimal, error) {
	service := e.client.NewCreateOrderService().
		Symbol(trading.VenueSymbol(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String())

	filled, err := e.place(ctx, service, symbol, clientOrderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to place market sell: %w", err)
	}
	return filled, nil
}

// place submits the order. A duplicate rejection means an earlier attempt
// with the same client order id reached the venue, so its fill is fetched
// instead.
func (e *Exchange) place(ctx context.Context, service *binance.CreateOrderService, symbol, clientOrderID string) (decimal.Decimal, error) {
	if clientOrderID != "" {
		service.NewClientOrderID(clientOrderID)
	}

	result, err := service.Do(ctx)
	if err != nil {
		if clientOrderID == "" || !isDuplicateOrder(err) {
			return decimal.Zero, err
		}
		return e.executedQuantity(ctx, symbol, clientOrderID)
	}

	filled, err := decimal.NewFromString(result.ExecutedQuantity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse executed quantity: %w", err)
	}
	return filled, nil
}

func (e *Exchange) executedQuantity(ctx context.Context, symbol, clientOrderID string) (decimal.Decimal, error) {
	order, err := e.client.NewGetOrderService().
		Symbol(trading.VenueSymbol(symbol)).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query duplicate order %s: %w", clientOrderID, err)
	}

	filled, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse executed quantity: %w", err)
	}
	return filled, nil
}

// isDuplicateOrder matches -2010 "Duplicate order sent.". -2010 alone is the
// generic new-order rejection, so the message decides.
func isDuplicateOrder(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == -2010 && strings.Contains(strings.ToLower(apiErr.Message), "duplicate order")
}

// Balance returns the free balance of the base asset. An asset missing from
// the account is reported as zero.
func (e *Exchange) Balance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account info: %w", err)
	}

	asset := trading.BaseAsset(symbol)
	for _, balance := range account.Balances {
		if balance.Asset == asset {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

// BidPrice returns the best bid from the book ticker
func (e *Exchange) BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	tickers, err := e.client.NewListBookTickersService().
		Symbol(trading.VenueSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get book ticker: %w", err)
	}
	if len(tickers) == 0 {
		return decimal.Zero, fmt.Errorf("no book ticker for symbol: %s", symbol)
	}

	bid, err := decimal.NewFromString(tickers[0].BidPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse bid price: %w", err)
	}
	return bid, nil
}

// MinNotional returns the NOTIONAL (or legacy MIN_NOTIONAL) filter of symbol.
// Successful lookups are cached for the life of the process.
func (e *Exchange) MinNotional(ctx context.Context, symbol string) (decimal.Decimal, error) {
	venue := trading.VenueSymbol(symbol)

	e.mu.RLock()
	cached, ok := e.minNotional[venue]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	info, err := e.client.NewExchangeInfoService().Symbol(venue).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != venue {
			continue
		}
		value, err := minNotionalFromFilters(s.Filters)
		if err != nil {
			return decimal.Zero, err
		}
		e.mu.Lock()
		e.minNotional[venue] = value
		e.mu.Unlock()
		return value, nil
	}

	return decimal.Zero, fmt.Errorf("symbol not found: %s", venue)
}

func minNotionalFromFilters(filters []map[string]interface{}) (decimal.Decimal, error) {
	for _, filter := range filters {
		filterType, _ := filter["filterType"].(string)
		if filterType != "NOTIONAL" && filterType != "MIN_NOTIONAL" {
			continue
		}
		raw, _ := filter["minNotional"].(string)
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse min notional: %w", err)
		}
		return value, nil
	}
	// 没有金额过滤器的交易对不做限制
	return decimal.Zero, nil
}

// Ping checks REST connectivity
func (e *Exchange) Ping(ctx context.Context) error {
	if err := e.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("failed to ping exchange: %w", err)
	}
	return nil
}
