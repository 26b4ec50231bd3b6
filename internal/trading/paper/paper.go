// Package paper implements a dry-run venue priced from public market data.
// Orders never reach the account; fills are simulated at the current book.
package paper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/utils/request"
)

const quantityPlaces = 8

type Exchange struct {
	baseURL    string
	httpClient *resty.Client

	mu     sync.Mutex
	wallet map[string]decimal.Decimal // base asset -> simulated free balance
}

func NewExchange() *Exchange {
	return &Exchange{
		baseURL:    "https://api.binance.com",
		httpClient: request.Request,
		wallet:     make(map[string]decimal.Decimal),
	}
}

type bookTicker struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

func (p *Exchange) get(ctx context.Context, path string, symbol string, out interface{}) error {
	req := p.httpClient.R().SetContext(ctx)
	if symbol != "" {
		req.SetQueryParam("symbol", trading.VenueSymbol(symbol))
	}

	resp, err := req.Get(p.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (p *Exchange) book(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	var ticker bookTicker
	if err := p.get(ctx, "/api/v3/ticker/bookTicker", symbol, &ticker); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if bid, err = decimal.NewFromString(ticker.BidPrice); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse bid price: %w", err)
	}
	if ask, err = decimal.NewFromString(ticker.AskPrice); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse ask price: %w", err)
	}
	return bid, ask, nil
}

// MarketBuy fills cost / ask, truncated to exchange precision.
func (p *Exchange) MarketBuy(ctx context.Context, symbol string, cost decimal.Decimal, _ string) (decimal.Decimal, error) {
	_, ask, err := p.book(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !ask.IsPositive() {
		return decimal.Zero, fmt.Errorf("no ask price for symbol: %s", symbol)
	}

	filled := cost.DivRound(ask, quantityPlaces+4).Truncate(quantityPlaces)

	p.mu.Lock()
	base := trading.BaseAsset(symbol)
	p.wallet[base] = p.wallet[base].Add(filled)
	p.mu.Unlock()

	return filled, nil
}

// MarketSell fills the full requested quantity. The simulated wallet never goes negative.
func (p *Exchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, _ string) (decimal.Decimal, error) {
	if _, _, err := p.book(ctx, symbol); err != nil {
		return decimal.Zero, err
	}

	p.mu.Lock()
	base := trading.BaseAsset(symbol)
	left := p.wallet[base].Sub(qty)
	if left.IsPositive() {
		p.wallet[base] = left
	} else {
		delete(p.wallet, base)
	}
	p.mu.Unlock()

	return qty, nil
}

func (p *Exchange) Balance(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wallet[trading.BaseAsset(symbol)], nil
}

func (p *Exchange) BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bid, _, err := p.book(ctx, symbol)
	return bid, err
}

func (p *Exchange) MinNotional(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := p.get(ctx, "/api/v3/exchangeInfo", symbol, &info); err != nil {
		return decimal.Zero, err
	}
	if len(info.Symbols) == 0 {
		return decimal.Zero, fmt.Errorf("symbol not found")
	}

	for _, filter := range info.Symbols[0].Filters {
		if filter.FilterType == "NOTIONAL" || filter.FilterType == "MIN_NOTIONAL" {
			value, err := decimal.NewFromString(filter.MinNotional)
			if err != nil {
				return decimal.Zero, fmt.Errorf("failed to parse min notional: %w", err)
			}
			return value, nil
		}
	}
	return decimal.Zero, nil
}

func (p *Exchange) Ping(ctx context.Context) error {
	return p.get(ctx, "/api/v3/ping", "", nil)
}
