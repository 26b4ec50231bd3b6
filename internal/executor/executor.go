package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/ledger"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/metrics"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/models"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/risk"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading"
)

// SellMode 卖出数量的来源
type SellMode string

const (
	SellFromLedger  SellMode = "ledger"  // 卖出本地记录的持仓
	SellFromBalance SellMode = "balance" // 卖出交易所可用余额
)

// ParseSellMode maps a config value to a SellMode. Empty means ledger.
func ParseSellMode(s string) (SellMode, error) {
	switch SellMode(s) {
	case "", SellFromLedger:
		return SellFromLedger, nil
	case SellFromBalance:
		return SellFromBalance, nil
	default:
		return "", fmt.Errorf("unknown sell mode: %q", s)
	}
}

type Options struct {
	QuoteCost        decimal.Decimal // 每次买入花费的计价货币数量
	SellMode         SellMode
	CheckMinNotional bool
}

// Executor turns intents into orders. It handles one intent at a time and
// is the only writer of the ledger.
type Executor struct {
	gateway trading.Gateway
	ledger  *ledger.Ledger
	flags   risk.FlagProvider
	opts    Options
	logger  *zap.Logger
}

func New(gateway trading.Gateway, book *ledger.Ledger, flags risk.FlagProvider, opts Options, logger *zap.Logger) *Executor {
	if opts.SellMode == "" {
		opts.SellMode = SellFromLedger
	}
	return &Executor{
		gateway: gateway,
		ledger:  book,
		flags:   flags,
		opts:    opts,
		logger:  logger.With(zap.String("component", "executor")),
	}
}

// Execute runs intent to completion. It never returns an error; failures are
// logged and reported through the Outcome.
func (e *Executor) Execute(ctx context.Context, intent models.Intent) models.Outcome {
	if intent.ClientOrderID == "" {
		intent.ClientOrderID = uuid.NewString()
	}

	var outcome models.Outcome
	switch intent.Direction {
	case models.Buy:
		outcome = e.buy(ctx, intent)
	case models.Sell:
		outcome = e.sell(ctx, intent)
	default:
		e.logger.Error("Unknown direction", zap.String("direction", string(intent.Direction)))
		outcome = models.OutcomeSkipped
	}

	metrics.OrdersTotal.WithLabelValues(intent.Symbol, string(intent.Direction), string(outcome)).Inc()
	return outcome
}

func (e *Executor) buy(ctx context.Context, intent models.Intent) models.Outcome {
	log := e.logger.With(
		zap.String("symbol", intent.Symbol),
		zap.String("client_order_id", intent.ClientOrderID),
	)

	decision := risk.CheckBuy(e.flags, e.ledger.Has(intent.Symbol))
	if !decision.Allowed {
		log.Info("Buy skipped", zap.String("reason", decision.Reason))
		return models.OutcomeSkipped
	}
	if decision.Reason != "" {
		log.Info(decision.Reason)
	}

	filled, ok := e.gateway.MarketBuy(ctx, intent.Symbol, e.opts.QuoteCost, intent.ClientOrderID)
	if !ok {
		log.Error("Buy failed", zap.String("cost", e.opts.QuoteCost.String()))
		return models.OutcomeFailed
	}

	if filled.IsZero() {
		log.Warn("Buy filled zero quantity", zap.String("cost", e.opts.QuoteCost.String()))
		return models.OutcomeFilled
	}

	total, err := e.ledger.Add(ctx, intent.Symbol, filled)
	if err != nil {
		log.Error("Failed to persist position", zap.Error(err))
	}
	log.Info("Bought",
		zap.String("filled", filled.String()),
		zap.String("position", total.String()),
	)
	return models.OutcomeFilled
}

func (e *Executor) sell(ctx context.Context, intent models.Intent) models.Outcome {
	log := e.logger.With(
		zap.String("symbol", intent.Symbol),
		zap.String("client_order_id", intent.ClientOrderID),
		zap.String("mode", string(e.opts.SellMode)),
	)

	var qty decimal.Decimal
	switch e.opts.SellMode {
	case SellFromBalance:
		balance, ok := e.gateway.Balance(ctx, intent.Symbol)
		if !ok {
			log.Error("Sell aborted, balance unavailable")
			return models.OutcomeFailed
		}
		if !balance.IsPositive() {
			log.Error("Sell aborted, no free balance")
			return models.OutcomeSkipped
		}
		qty = balance
	default:
		qty = e.ledger.Quantity(intent.Symbol)
		if !qty.IsPositive() {
			log.Error("Sell aborted, no tracked position")
			return models.OutcomeSkipped
		}
	}

	if e.opts.CheckMinNotional {
		if outcome, ok := e.checkMinNotional(ctx, intent.Symbol, qty, log); !ok {
			return outcome
		}
	}

	sold, ok := e.gateway.MarketSell(ctx, intent.Symbol, qty, intent.ClientOrderID)
	if !ok {
		log.Error("Sell failed", zap.String("qty", qty.String()))
		return models.OutcomeFailed
	}

	if e.opts.SellMode == SellFromLedger {
		if err := e.ledger.Remove(ctx, intent.Symbol); err != nil {
			log.Error("Failed to persist position", zap.Error(err))
		}
	}
	log.Info("Sold", zap.String("qty", qty.String()), zap.String("filled", sold.String()))
	return models.OutcomeFilled
}

func (e *Executor) checkMinNotional(ctx context.Context, symbol string, qty decimal.Decimal, log *zap.Logger) (models.Outcome, bool) {
	bid, ok := e.gateway.BidPrice(ctx, symbol)
	if !ok {
		log.Error("Sell aborted, bid price unavailable")
		return models.OutcomeFailed, false
	}
	minimum, ok := e.gateway.MinNotional(ctx, symbol)
	if !ok {
		log.Error("Sell aborted, min notional unavailable")
		return models.OutcomeFailed, false
	}
	if err := risk.CheckMinNotional(qty, bid, minimum); err != nil {
		log.Error("Sell aborted", zap.Error(err))
		return models.OutcomeSkipped, false
	}
	return "", true
}

// Flush re-persists the ledger snapshot. Called after every processed signal.
func (e *Executor) Flush(ctx context.Context) error {
	return e.ledger.Persist(ctx)
}
