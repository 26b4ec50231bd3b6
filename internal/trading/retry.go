package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/metrics"
)

const (
	DefaultAttempts = 10
	DefaultInterval = 2 * time.Second
)

// Retrying implements Gateway on top of an Exchange.
// Every error is retried the same way: fixed interval, bounded attempts,
// then the operation reports absence instead of an error.
type Retrying struct {
	exchange Exchange
	logger   *zap.Logger
	limiter  *rate.Limiter
	attempts int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Retrying)

// WithLimiter throttles every attempt through limiter before it reaches the venue.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(r *Retrying) { r.limiter = limiter }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrying) { r.sleep = sleep }
}

func NewRetrying(exchange Exchange, logger *zap.Logger, opts ...Option) *Retrying {
	r := &Retrying{
		exchange: exchange,
		logger:   logger.With(zap.String("component", "gateway")),
		attempts: DefaultAttempts,
		interval: DefaultInterval,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retry[T any](ctx context.Context, r *Retrying, op, symbol string, call func(context.Context) (T, error)) (T, bool) {
	var zero T
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.logger.Error("Rate limiter aborted request", zap.String("op", op), zap.Error(err))
				return zero, false
			}
		}

		v, err := call(ctx)
		if err == nil {
			return v, true
		}

		metrics.GatewayFailures.WithLabelValues(op).Inc()
		r.logger.Error("Request failed",
			zap.String("op", op),
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Int("attempts", r.attempts),
			zap.Error(err))

		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, r.interval); err != nil {
			return zero, false
		}
	}
	return zero, false
}

func (r *Retrying) MarketBuy(ctx context.Context, symbol string, cost decimal.Decimal, clientOrderID string) (decimal.Decimal, bool) {
	return retry(ctx, r, "market_buy", symbol, func(ctx context.Context) (decimal.Decimal, error) {
		return r.exchange.MarketBuy(ctx, symbol, cost, clientOrderID)
	})
}

func (r *Retrying) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (decimal.Decimal, bool) {
	return retry(ctx, r, "market_sell", symbol, func(ctx context.Context) (decimal.Decimal, error) {
		return r.exchange.MarketSell(ctx, symbol, qty, clientOrderID)
	})
}

func (r *Retrying) Balance(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return retry(ctx, r, "balance", symbol, func(ctx context.Context) (decimal.Decimal, error) {
		return r.exchange.Balance(ctx, symbol)
	})
}

func (r *Retrying) BidPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return retry(ctx, r, "bid_price", symbol, func(ctx context.Context) (decimal.Decimal, error) {
		return r.exchange.BidPrice(ctx, symbol)
	})
}

func (r *Retrying) MinNotional(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return retry(ctx, r, "min_notional", symbol, func(ctx context.Context) (decimal.Decimal, error) {
		return r.exchange.MinNotional(ctx, symbol)
	})
}

func (r *Retrying) Ping(ctx context.Context) bool {
	_, ok := retry(ctx, r, "ping", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.exchange.Ping(ctx)
	})
	return ok
}
