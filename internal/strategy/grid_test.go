package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"growth-core/internal/exchange"
)

func newTestGrid(t *testing.T, exec exchange.OrderExecutionProvider) *GridStrategy {
	t.Helper()
	g, err := NewGridStrategy("grid-test", GridConfig{
		Symbol:     "BTC-PERP",
		Levels:     4,
		Spacing:    0.01,
		Investment: 1000,
		Leverage:   2,
		MinProfit:  0.002,
		Fee:        0.0005,
	}, nil, exec, nil)
	require.NoError(t, err)
	require.NoError(t, g.Initialize(context.Background()))
	return g
}

func TestGridBuildsLadderOnFirstTick(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)

	_, err := g.OnTick(context.Background(), exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)

	// 5 rungs, a buy and a paired sell each.
	require.Equal(t, 10, exec.placedCount())
	require.Len(t, g.OpenOrders(), 10)

	snap := g.Snapshot()
	require.Equal(t, 5, snap.Levels)
	require.Equal(t, 1, snap.Rebuilds)
}

func TestGridBuyFillSpawnsPairedSell(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)

	var buy TrackedOrder
	for _, o := range g.OpenOrders() {
		if o.Side == exchange.Buy {
			buy = o
			break
		}
	}
	require.NotEmpty(t, buy.ID)

	before := exec.placedCount()
	require.NoError(t, g.OnFill(ctx, exchange.Fill{
		OrderID: buy.ID, Market: "BTC-PERP", Side: exchange.Buy,
		Price: buy.Price, Size: buy.Size,
	}))
	require.Equal(t, before+1, exec.placedCount())

	sell := exec.lastPlaced()
	require.Equal(t, exchange.Sell, sell.Side)
	// Markup is max(spacing, minProfit+fee) = spacing here.
	require.InDelta(t, buy.Price*1.01, sell.Price, 1e-9)
	require.InDelta(t, buy.Size, sell.Size, 1e-12)
}

func TestGridSellFillRealizesProfitAndRefills(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)

	var sell TrackedOrder
	for _, o := range g.OpenOrders() {
		if o.Side == exchange.Sell && o.PairPrice > 0 {
			sell = o
			break
		}
	}
	require.NotEmpty(t, sell.ID)

	require.NoError(t, g.OnFill(ctx, exchange.Fill{
		OrderID: sell.ID, Market: "BTC-PERP", Side: exchange.Sell,
		Price: sell.Price, Size: sell.Size,
	}))

	snap := g.Snapshot()
	require.InDelta(t, (sell.Price-sell.PairPrice)*sell.Size, snap.RealizedPnL, 1e-9)

	refill := exec.lastPlaced()
	require.Equal(t, exchange.Buy, refill.Side)
	require.InDelta(t, sell.Price*0.99, refill.Price, 1e-9)
}

func TestGridIgnoresForeignFills(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)

	before := exec.placedCount()
	require.NoError(t, g.OnFill(ctx, exchange.Fill{OrderID: "someone-elses", Side: exchange.Buy, Price: 100, Size: 1}))
	require.Equal(t, before, exec.placedCount())
}

func TestGridRebuildsOnDeviation(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)
	require.Equal(t, 1, g.Snapshot().Rebuilds)

	// Default deviation threshold is 3%; a 10% move forces a rebuild.
	_, err = g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 110})
	require.NoError(t, err)
	require.Equal(t, 2, g.Snapshot().Rebuilds)
	require.NotEmpty(t, exec.canceled)
}

func TestGridMeanReversionSignal(t *testing.T) {
	g, err := NewGridStrategy("grid-signal", GridConfig{
		Symbol:             "ETH-PERP",
		Levels:             4,
		Spacing:            0.01,
		Investment:         500,
		Leverage:           1,
		DeviationThreshold: 0.05,
	}, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, g.Initialize(ctx))

	// First tick builds the ladder around 100.
	sig, err := g.OnTick(ctx, exchange.MarketData{Symbol: "ETH-PERP", Price: 100})
	require.NoError(t, err)
	require.Nil(t, sig)

	// 2% below center: beyond one spacing, inside the rebuild band.
	sig, err = g.OnTick(ctx, exchange.MarketData{Symbol: "ETH-PERP", Price: 98})
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Equal(t, Long, sig.Direction)
	require.InDelta(t, 0.02/0.05, sig.Confidence, 1e-9)
}

func TestGridStaleOrderSweep(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)
	open := len(g.OpenOrders())
	require.Positive(t, open)

	// Age every order past the stale cutoff.
	g.mu.Lock()
	for _, o := range g.orders {
		o.CreatedAt = o.CreatedAt.Add(-2 * g.cfg.StaleAfter)
	}
	g.mu.Unlock()

	g.HealthCheck(ctx)
	require.Empty(t, g.OpenOrders())
	require.Len(t, exec.canceled, open)
}

func TestGridDeRisksOnLosses(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)
	before := g.Snapshot()

	// Losses past 5% of investment trigger the de-risk path.
	g.mu.Lock()
	g.realized = -0.06 * g.cfg.Investment
	g.mu.Unlock()

	g.HealthCheck(ctx)
	after := g.Snapshot()
	require.InDelta(t, before.Leverage*0.8, after.Leverage, 1e-9)
	require.InDelta(t, before.Spacing*1.2, after.Spacing, 1e-9)
	require.Equal(t, before.Rebuilds+1, after.Rebuilds)
}

func TestGridRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  GridConfig
	}{
		{"odd levels", GridConfig{Symbol: "X", Levels: 5, Spacing: 0.01, Investment: 100, Leverage: 1}},
		{"zero levels", GridConfig{Symbol: "X", Levels: 0, Spacing: 0.01, Investment: 100, Leverage: 1}},
		{"no symbol", GridConfig{Levels: 4, Spacing: 0.01, Investment: 100, Leverage: 1}},
		{"zero spacing", GridConfig{Symbol: "X", Levels: 4, Investment: 100, Leverage: 1}},
		{"zero investment", GridConfig{Symbol: "X", Levels: 4, Spacing: 0.01, Leverage: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGridStrategy("bad", tc.cfg, nil, nil, nil)
			require.Error(t, err)
		})
	}
}

func TestGridStopCancelsEverything(t *testing.T) {
	exec := &fakeExec{}
	g := newTestGrid(t, exec)
	ctx := context.Background()

	_, err := g.OnTick(ctx, exchange.MarketData{Symbol: "BTC-PERP", Price: 100})
	require.NoError(t, err)
	open := len(g.OpenOrders())

	require.NoError(t, g.Stop(ctx))
	require.Equal(t, StatusStopped, g.Status())
	require.Len(t, exec.canceled, open)
	require.NoError(t, g.Stop(ctx)) // idempotent
}
