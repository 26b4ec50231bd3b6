package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/ledger"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/models"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/risk"
)

type fakeGateway struct {
	buyFill   decimal.Decimal
	buyOK     bool
	sellOK    bool
	balance   decimal.Decimal
	balanceOK bool
	bid       decimal.Decimal
	minimum   decimal.Decimal
	priceOK   bool

	buys     int
	sells    int
	balances int
	sold     decimal.Decimal
	cost     decimal.Decimal
	ids      []string
}

func (g *fakeGateway) MarketBuy(_ context.Context, _ string, cost decimal.Decimal, id string) (decimal.Decimal, bool) {
	g.buys++
	g.cost = cost
	g.ids = append(g.ids, id)
	return g.buyFill, g.buyOK
}

func (g *fakeGateway) MarketSell(_ context.Context, _ string, qty decimal.Decimal, id string) (decimal.Decimal, bool) {
	g.sells++
	g.sold = qty
	g.ids = append(g.ids, id)
	return qty, g.sellOK
}

func (g *fakeGateway) Balance(context.Context, string) (decimal.Decimal, bool) {
	g.balances++
	return g.balance, g.balanceOK
}

func (g *fakeGateway) BidPrice(context.Context, string) (decimal.Decimal, bool) {
	return g.bid, g.priceOK
}

func (g *fakeGateway) MinNotional(context.Context, string) (decimal.Decimal, bool) {
	return g.minimum, g.priceOK
}

func (g *fakeGateway) Ping(context.Context) bool { return true }

type memoryStore struct {
	saved   map[string]decimal.Decimal
	saves   int
	saveErr error
}

func (m *memoryStore) Load(context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(m.saved))
	for k, v := range m.saved {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, positions map[string]decimal.Decimal) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = positions
	return nil
}

func (m *memoryStore) Close() error { return nil }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newExecutor(t *testing.T, gw *fakeGateway, store *memoryStore, flags risk.FlagProvider, opts Options) (*Executor, *ledger.Ledger) {
	t.Helper()
	if opts.QuoteCost.IsZero() {
		opts.QuoteCost = d("20")
	}
	book, err := ledger.Open(context.Background(), store)
	require.NoError(t, err)
	return New(gw, book, flags, opts, zap.NewNop()), book
}

func intent(dir models.Direction, symbol string) models.Intent {
	return models.Intent{Direction: dir, Symbol: symbol}
}

func TestExecutor_BuyCreatesAndAccumulates(t *testing.T) {
	gw := &fakeGateway{buyFill: d("0.0003"), buyOK: true}
	store := &memoryStore{}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})
	ctx := context.Background()

	assert.Equal(t, models.OutcomeFilled, ex.Execute(ctx, intent(models.Buy, "BTC/USDT")))
	assert.True(t, book.Quantity("BTC/USDT").Equal(d("0.0003")))

	gw.buyFill = d("0.0002")
	assert.Equal(t, models.OutcomeFilled, ex.Execute(ctx, intent(models.Buy, "BTC/USDT")))
	assert.True(t, book.Quantity("BTC/USDT").Equal(d("0.0005")))
	assert.True(t, store.saved["BTC/USDT"].Equal(d("0.0005")))
	assert.True(t, gw.cost.Equal(d("20")))
}

func TestExecutor_BuyGates(t *testing.T) {
	tests := []struct {
		name     string
		flags    risk.StaticFlags
		held     bool
		wantBuys int
		want     models.Outcome
	}{
		{name: "stop, no position", flags: risk.StaticFlags{Stop: true}, want: models.OutcomeSkipped},
		{name: "stop with top-up, no position", flags: risk.StaticFlags{Stop: true, TopUp: true}, want: models.OutcomeSkipped},
		{name: "stop, held, no top-up", flags: risk.StaticFlags{Stop: true}, held: true, want: models.OutcomeSkipped},
		{name: "stop, held, top-up", flags: risk.StaticFlags{Stop: true, TopUp: true}, held: true, wantBuys: 1, want: models.OutcomeFilled},
		{name: "no gates", wantBuys: 1, want: models.OutcomeFilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{saved: map[string]decimal.Decimal{}}
			if tt.held {
				store.saved["ETH/USDT"] = d("0.01")
			}
			gw := &fakeGateway{buyFill: d("0.005"), buyOK: true}
			ex, _ := newExecutor(t, gw, store, tt.flags, Options{})

			assert.Equal(t, tt.want, ex.Execute(context.Background(), intent(models.Buy, "ETH/USDT")))
			assert.Equal(t, tt.wantBuys, gw.buys)
		})
	}
}

func TestExecutor_BuyAbsentLeavesLedger(t *testing.T) {
	gw := &fakeGateway{buyOK: false}
	store := &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("0.1")}}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})

	assert.Equal(t, models.OutcomeFailed, ex.Execute(context.Background(), intent(models.Buy, "BTC/USDT")))
	assert.True(t, book.Quantity("BTC/USDT").Equal(d("0.1")))
	assert.Zero(t, store.saves)
}

func TestExecutor_BuyZeroFill(t *testing.T) {
	gw := &fakeGateway{buyFill: decimal.Zero, buyOK: true}
	store := &memoryStore{}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})

	assert.Equal(t, models.OutcomeFilled, ex.Execute(context.Background(), intent(models.Buy, "BTC/USDT")))
	assert.False(t, book.Has("BTC/USDT"))
	assert.Zero(t, store.saves)
}

func TestExecutor_BuyPersistFailureKeepsPosition(t *testing.T) {
	gw := &fakeGateway{buyFill: d("1"), buyOK: true}
	store := &memoryStore{saveErr: errors.New("disk full")}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})
	ctx := context.Background()

	assert.Equal(t, models.OutcomeFilled, ex.Execute(ctx, intent(models.Buy, "SOL/USDT")))
	assert.True(t, book.Quantity("SOL/USDT").Equal(d("1")))

	store.saveErr = nil
	require.NoError(t, ex.Flush(ctx))
	assert.True(t, store.saved["SOL/USDT"].Equal(d("1")))
}

func TestExecutor_ClientOrderID(t *testing.T) {
	gw := &fakeGateway{buyFill: d("1"), buyOK: true}
	ex, _ := newExecutor(t, gw, &memoryStore{}, risk.StaticFlags{}, Options{})
	ctx := context.Background()

	ex.Execute(ctx, models.Intent{Direction: models.Buy, Symbol: "BTC/USDT", ClientOrderID: "fixed"})
	ex.Execute(ctx, intent(models.Buy, "BTC/USDT"))
	ex.Execute(ctx, intent(models.Buy, "BTC/USDT"))

	require.Len(t, gw.ids, 3)
	assert.Equal(t, "fixed", gw.ids[0])
	assert.NotEmpty(t, gw.ids[1])
	assert.NotEqual(t, gw.ids[1], gw.ids[2])
}

func TestExecutor_SellFromLedger(t *testing.T) {
	gw := &fakeGateway{sellOK: true}
	store := &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("0.0005"), "ETH/USDT": d("1")}}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})

	assert.Equal(t, models.OutcomeFilled, ex.Execute(context.Background(), intent(models.Sell, "BTC/USDT")))
	assert.True(t, gw.sold.Equal(d("0.0005")))
	assert.False(t, book.Has("BTC/USDT"))
	assert.NotContains(t, store.saved, "BTC/USDT")
	assert.Contains(t, store.saved, "ETH/USDT")
	assert.Zero(t, gw.balances)
}

func TestExecutor_SellWithoutPosition(t *testing.T) {
	gw := &fakeGateway{sellOK: true}
	ex, _ := newExecutor(t, gw, &memoryStore{}, risk.StaticFlags{}, Options{})

	assert.Equal(t, models.OutcomeSkipped, ex.Execute(context.Background(), intent(models.Sell, "BTC/USDT")))
	assert.Zero(t, gw.sells)
}

func TestExecutor_SellAbsentKeepsPosition(t *testing.T) {
	gw := &fakeGateway{sellOK: false}
	store := &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("0.2")}}
	ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{})

	assert.Equal(t, models.OutcomeFailed, ex.Execute(context.Background(), intent(models.Sell, "BTC/USDT")))
	assert.Equal(t, 1, gw.sells)
	assert.True(t, book.Quantity("BTC/USDT").Equal(d("0.2")))
	assert.Zero(t, store.saves)
}

func TestExecutor_SellFromBalance(t *testing.T) {
	tests := []struct {
		name      string
		balance   string
		balanceOK bool
		wantSells int
		want      models.Outcome
	}{
		{name: "sells free balance", balance: "0.75", balanceOK: true, wantSells: 1, want: models.OutcomeFilled},
		{name: "zero balance", balance: "0", balanceOK: true, want: models.OutcomeSkipped},
		{name: "balance absent", balance: "0", balanceOK: false, want: models.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{sellOK: true, balance: d(tt.balance), balanceOK: tt.balanceOK}
			store := &memoryStore{saved: map[string]decimal.Decimal{"ETH/USDT": d("0.3")}}
			ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{SellMode: SellFromBalance})

			assert.Equal(t, tt.want, ex.Execute(context.Background(), intent(models.Sell, "ETH/USDT")))
			assert.Equal(t, tt.wantSells, gw.sells)
			if tt.wantSells > 0 {
				assert.True(t, gw.sold.Equal(d(tt.balance)))
			}
			assert.True(t, book.Quantity("ETH/USDT").Equal(d("0.3")))
			assert.Zero(t, store.saves)
		})
	}
}

func TestExecutor_SellMinNotional(t *testing.T) {
	tests := []struct {
		name      string
		bid       string
		priceOK   bool
		wantSells int
		want      models.Outcome
	}{
		{name: "above minimum", bid: "60000", priceOK: true, wantSells: 1, want: models.OutcomeFilled},
		{name: "below minimum", bid: "1000", priceOK: true, want: models.OutcomeSkipped},
		{name: "price absent", bid: "0", priceOK: false, want: models.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{sellOK: true, bid: d(tt.bid), minimum: d("10"), priceOK: tt.priceOK}
			store := &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("0.001")}}
			ex, book := newExecutor(t, gw, store, risk.StaticFlags{}, Options{CheckMinNotional: true})

			assert.Equal(t, tt.want, ex.Execute(context.Background(), intent(models.Sell, "BTC/USDT")))
			assert.Equal(t, tt.wantSells, gw.sells)
			assert.Equal(t, tt.wantSells == 0, book.Has("BTC/USDT"))
		})
	}
}

func TestParseSellMode(t *testing.T) {
	mode, err := ParseSellMode("")
	require.NoError(t, err)
	assert.Equal(t, SellFromLedger, mode)

	mode, err = ParseSellMode("balance")
	require.NoError(t, err)
	assert.Equal(t, SellFromBalance, mode)

	_, err = ParseSellMode("all")
	assert.Error(t, err)
}
