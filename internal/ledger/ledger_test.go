package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	saved   map[string]decimal.Decimal
	saves   int
	saveErr error
	loadErr error
}

func (m *memoryStore) Load(context.Context) (map[string]decimal.Decimal, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
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

func TestLedger_AddSumsFills(t *testing.T) {
	store := &memoryStore{}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	fills := []string{"0.001", "0.0025", "0.00031", "1"}
	want := decimal.Zero
	for i, f := range fills {
		total, err := l.Add(context.Background(), "BTC/USDT", d(f))
		require.NoError(t, err)
		want = want.Add(d(f))
		assert.True(t, total.Equal(want), "after fill %d", i)
		assert.Equal(t, i+1, store.saves)
	}

	assert.True(t, l.Quantity("BTC/USDT").Equal(d("1.00381")))
	assert.True(t, store.saved["BTC/USDT"].Equal(d("1.00381")))
}

func TestLedger_Remove(t *testing.T) {
	store := &memoryStore{saved: map[string]decimal.Decimal{"ETH/USDT": d("2"), "BTC/USDT": d("0.5")}}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)
	require.True(t, l.Has("ETH/USDT"))

	require.NoError(t, l.Remove(context.Background(), "ETH/USDT"))

	assert.False(t, l.Has("ETH/USDT"))
	assert.True(t, l.Quantity("ETH/USDT").IsZero())
	assert.NotContains(t, store.saved, "ETH/USDT")
	assert.Equal(t, []string{"BTC/USDT"}, l.Symbols())
}

func TestLedger_OpenDropsZeroAndRejectsNegative(t *testing.T) {
	l, err := Open(context.Background(), &memoryStore{saved: map[string]decimal.Decimal{
		"BTC/USDT": d("0"),
		"ETH/USDT": d("1.5"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT"}, l.Symbols())

	_, err = Open(context.Background(), &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("-1")}})
	assert.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = Open(context.Background(), &memoryStore{loadErr: errors.New("disk gone")})
	assert.Error(t, err)
}

func TestLedger_SaveFailureKeepsMutation(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("read-only file system")}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	total, err := l.Add(context.Background(), "BTC/USDT", d("0.2"))
	require.Error(t, err)
	assert.True(t, total.Equal(d("0.2")))
	assert.True(t, l.Quantity("BTC/USDT").Equal(d("0.2")))

	store.saveErr = nil
	require.NoError(t, l.Persist(context.Background()))
	assert.True(t, store.saved["BTC/USDT"].Equal(d("0.2")))
}

func TestLedger_AddRejectsNegative(t *testing.T) {
	store := &memoryStore{}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	_, err = l.Add(context.Background(), "BTC/USDT", d("-0.1"))
	assert.ErrorIs(t, err, ErrNegativeQuantity)
	assert.Zero(t, store.saves)

	total, err := l.Add(context.Background(), "BTC/USDT", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.False(t, l.Has("BTC/USDT"))
}

func TestLedger_SnapshotIsCopy(t *testing.T) {
	l, err := Open(context.Background(), &memoryStore{saved: map[string]decimal.Decimal{"BTC/USDT": d("1")}})
	require.NoError(t, err)

	snap := l.Snapshot()
	snap["BTC/USDT"] = d("99")
	delete(snap, "BTC/USDT")

	assert.True(t, l.Quantity("BTC/USDT").Equal(d("1")))
}
