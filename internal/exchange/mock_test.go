package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockMarketOrderFillsImmediately(t *testing.T) {
	m := NewMock(10000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	ref, err := m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Buy, Type: Market, Size: 2})
	require.NoError(t, err)
	require.InDelta(t, 100, ref.Price, 1e-9)

	positions, err := m.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.InDelta(t, 2, positions[0].Size, 1e-9)
	require.InDelta(t, 100, positions[0].EntryPrice, 1e-9)
}

func TestMockLimitOrderRestsUntilCrossed(t *testing.T) {
	m := NewMock(10000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	var mu sync.Mutex
	var fills []Fill
	unsub := m.SubscribeFills(func(f Fill) {
		mu.Lock()
		fills = append(fills, f)
		mu.Unlock()
	})
	defer unsub()

	_, err := m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Buy, Type: Limit, Price: 95, Size: 1})
	require.NoError(t, err)
	require.Equal(t, 1, m.OpenOrderCount())

	m.SetPrice("BTC-PERP", 94)
	require.Zero(t, m.OpenOrderCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fills, 1)
	require.InDelta(t, 95, fills[0].Price, 1e-9) // filled at the limit price
}

func TestMockRealizesPnLOnReduce(t *testing.T) {
	m := NewMock(1000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	_, err := m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Buy, Type: Market, Size: 1})
	require.NoError(t, err)

	m.mu.Lock()
	m.prices["BTC-PERP"] = 110
	m.mu.Unlock()

	fillCh := make(chan Fill, 1)
	unsub := m.SubscribeFills(func(f Fill) { fillCh <- f })
	defer unsub()

	_, err = m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Sell, Type: Market, Size: 1, ReduceOnly: true})
	require.NoError(t, err)

	select {
	case f := <-fillCh:
		require.InDelta(t, 10, f.PnL, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("fill callback never fired")
	}

	acct, err := m.GetAccount(ctx)
	require.NoError(t, err)
	require.InDelta(t, 1010, acct.Equity, 1e-9)

	positions, err := m.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestMockCancelOrder(t *testing.T) {
	m := NewMock(1000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	ref, err := m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Buy, Type: Limit, Price: 90, Size: 1})
	require.NoError(t, err)
	require.NoError(t, m.CancelOrder(ctx, ref.ID))
	require.Error(t, m.CancelOrder(ctx, ref.ID))
	require.Zero(t, m.OpenOrderCount())
}

func TestMockFailNextCalls(t *testing.T) {
	m := NewMock(1000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	m.FailNextCalls(2)
	_, err := m.GetAccount(ctx)
	require.Error(t, err)
	_, err = m.GetAccount(ctx)
	require.Error(t, err)
	_, err = m.GetAccount(ctx)
	require.NoError(t, err)
}

func TestMockSetLeverageMovesLiquidation(t *testing.T) {
	m := NewMock(10000, map[string]float64{"BTC-PERP": 100})
	ctx := context.Background()

	_, err := m.PlaceOrder(ctx, OrderParams{Market: "BTC-PERP", Side: Buy, Type: Market, Size: 1})
	require.NoError(t, err)

	require.NoError(t, m.SetLeverage(ctx, "BTC-PERP", 5))
	positions, err := m.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.InDelta(t, 5, positions[0].Leverage, 1e-9)
	// 1/5 margin: liquidation at 80% of price for a long.
	require.InDelta(t, 80, positions[0].LiquidationPrice, 1e-9)
}

func TestGetAccountWithTimeout(t *testing.T) {
	m := NewMock(1000, map[string]float64{"BTC-PERP": 100})
	acct, err := GetAccountWithTimeout(context.Background(), m, time.Second)
	require.NoError(t, err)
	require.InDelta(t, 1000, acct.Equity, 1e-9)
}
