package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"growth-core/internal/backtest"
	"growth-core/internal/errs"
	"growth-core/internal/exchange"
	"growth-core/internal/performance"
	"growth-core/internal/risk"
	"growth-core/internal/strategy"
	"growth-core/pkg/config"
	"growth-core/pkg/ratelimit"
)

func newTestController(t *testing.T, equity float64) (*Orchestrator, *exchange.Mock) {
	t.Helper()

	venue := exchange.NewMock(equity, map[string]float64{"BTC-PERP": 100})
	factory := strategy.NewFactory(strategy.Deps{Market: venue, Exec: venue})
	assessor := risk.NewAssessor(risk.AssessorConfig{MaxPositionSize: 0.2}, nil, nil)
	portfolio := risk.NewPortfolio(risk.PortfolioConfig{}, venue, venue, nil)
	tracker := performance.NewTracker(performance.Config{InitialCapital: equity}, nil)
	engine := backtest.NewEngine(backtest.Config{InitialCapital: equity}, nil)

	o, err := New(Config{
		Markets:           []string{"BTC-PERP"},
		InitialCapital:    equity,
		EmergencyStopLoss: 0.15,
	}, Deps{
		Market:    venue,
		Account:   venue,
		Exec:      venue,
		Fills:     venue,
		Factory:   factory,
		Assessor:  assessor,
		Portfolio: portfolio,
		Tracker:   tracker,
		Limiter:   ratelimit.New(1000, time.Second),
		Backtest:  engine,
	})
	require.NoError(t, err)
	return o, venue
}

func startController(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))
	require.NoError(t, o.Start(ctx))
	t.Cleanup(func() { _ = o.Stop(context.Background()) })
}

func TestControllerLifecycle(t *testing.T) {
	o, venue := newTestController(t, 500)
	ctx := context.Background()

	require.Equal(t, StateIdle, o.GetStatus().State)
	require.NoError(t, o.Initialize(ctx))
	require.NoError(t, o.Start(ctx))

	st := o.GetStatus()
	require.True(t, st.IsRunning)
	require.Equal(t, "initial", st.CurrentPhase)
	require.Equal(t, []string{"BTC-PERP"}, st.ActiveMarkets)
	require.Len(t, st.ActiveStrategies, 1)
	require.InDelta(t, 500, st.CurrentBalance, 1e-9)
	require.NotNil(t, st.RateLimiter)

	// A position opened during the run must be flat after the graceful stop.
	_, err := venue.PlaceOrder(ctx, exchange.OrderParams{
		Market: "BTC-PERP", Side: exchange.Buy, Type: exchange.Market, Size: 1,
	})
	require.NoError(t, err)

	require.NoError(t, o.Stop(ctx))
	require.Equal(t, StateStopped, o.GetStatus().State)

	positions, err := venue.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)

	require.NoError(t, o.Stop(ctx)) // idempotent
}

func TestControllerStartRequiresInitialize(t *testing.T) {
	o, _ := newTestController(t, 500)
	require.Error(t, o.Start(context.Background()))
}

func TestInitializeRetriesTransientFailures(t *testing.T) {
	o, venue := newTestController(t, 500)
	venue.FailNextCalls(2)
	require.NoError(t, o.Initialize(context.Background()))
}

func TestInitializeGivesUpAfterRetryBudget(t *testing.T) {
	o, venue := newTestController(t, 500)
	venue.FailNextCalls(5)
	require.Error(t, o.Initialize(context.Background()))
	require.Equal(t, StateIdle, o.GetStatus().State)
}

func TestGrowthPhaseRunsCombinedStrategy(t *testing.T) {
	o, _ := newTestController(t, 5000)
	startController(t, o)

	st := o.GetStatus()
	require.Equal(t, "growth", st.CurrentPhase)
	o.mu.Lock()
	_, isCombined := o.strategies["BTC-PERP"].(*strategy.CombinedStrategy)
	o.mu.Unlock()
	require.True(t, isCombined)
}

func TestOnTickPlacesGridOrders(t *testing.T) {
	o, venue := newTestController(t, 500)
	startController(t, o)

	md, err := venue.GetMarketData(context.Background(), "BTC-PERP")
	require.NoError(t, err)
	require.NoError(t, o.OnTick(context.Background(), md))
	require.Positive(t, venue.OpenOrderCount())
}

func TestPhaseTransitionRebuildsExactlyOnce(t *testing.T) {
	o, _ := newTestController(t, 500)
	startController(t, o)
	require.Equal(t, "initial", o.GetStatus().CurrentPhase)

	o.onAccountUpdate(exchange.Account{Equity: 5000})
	require.Equal(t, "growth", o.GetStatus().CurrentPhase)

	o.mu.Lock()
	first := o.strategies["BTC-PERP"]
	o.mu.Unlock()

	// Same phase again: no teardown, same instance keeps running.
	o.onAccountUpdate(exchange.Account{Equity: 6000})
	o.mu.Lock()
	second := o.strategies["BTC-PERP"]
	o.mu.Unlock()
	require.Same(t, first, second)
}

func TestEmergencyStopOnDrawdown(t *testing.T) {
	o, _ := newTestController(t, 120)
	startController(t, o)

	o.onAccountUpdate(exchange.Account{Equity: 120})
	require.Equal(t, StateRunning, o.GetStatus().State)

	// Peak 120 to 100 is a 16.7% drawdown, over the 15% threshold.
	o.onAccountUpdate(exchange.Account{Equity: 100})
	st := o.GetStatus()
	require.Equal(t, StateEmergencyStopped, st.State)
	require.False(t, st.IsRunning)
	require.NotEmpty(t, st.RecentErrors)

	// Later updates must not resurrect the controller.
	o.onAccountUpdate(exchange.Account{Equity: 500})
	require.Equal(t, StateEmergencyStopped, o.GetStatus().State)
}

func TestEmergencyStopOnEquityFloor(t *testing.T) {
	o, _ := newTestController(t, 1000)
	o.cfg.EmergencyStopLoss = 0.5 // keep the drawdown check out of the way
	startController(t, o)

	// Under 75% of initial capital.
	o.onAccountUpdate(exchange.Account{Equity: 700})
	require.Equal(t, StateEmergencyStopped, o.GetStatus().State)
}

func TestEmergencyStopFlattensPositions(t *testing.T) {
	o, venue := newTestController(t, 10000)
	startController(t, o)

	// Open a position directly on the venue.
	_, err := venue.PlaceOrder(context.Background(), exchange.OrderParams{
		Market: "BTC-PERP", Side: exchange.Buy, Type: exchange.Market, Size: 1,
	})
	require.NoError(t, err)
	positions, err := venue.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, positions)

	o.EmergencyStop(context.Background(), "test halt")

	positions, err = venue.GetOpenPositions(context.Background())
	require.NoError(t, err)
	for _, p := range positions {
		require.Zero(t, p.Size)
	}
}

func TestRunBacktestStoresReport(t *testing.T) {
	o, _ := newTestController(t, 500)
	startController(t, o)
	ctx := context.Background()

	end := time.Now()
	start := end.Add(-200 * time.Hour)
	res, err := o.RunBacktest(ctx, "momentum", "BTC-PERP", map[string]float64{
		"window": 10, "momentum_threshold": 0.005, "volume_threshold": 1.1,
	}, start, end)
	require.NoError(t, err)
	require.Equal(t, "momentum-BTC-PERP", res.Strategy)

	got, err := o.GetBacktestReport(ctx, "momentum-BTC-PERP")
	require.NoError(t, err)
	require.Equal(t, res, got)

	_, err = o.GetBacktestReport(ctx, "missing")
	require.Error(t, err)

	report := o.GetResearchReport()
	require.Contains(t, report.Backtests, "momentum-BTC-PERP")
}

func TestOnTickIgnoredWhenNotRunning(t *testing.T) {
	o, venue := newTestController(t, 500)
	md := exchange.MarketData{Symbol: "BTC-PERP", Price: 100}
	require.NoError(t, o.OnTick(context.Background(), md))
	require.Zero(t, venue.OpenOrderCount())
}

func TestEmergencyStopBlocksRestart(t *testing.T) {
	o, _ := newTestController(t, 120)
	startController(t, o)

	o.onAccountUpdate(exchange.Account{Equity: 120})
	o.onAccountUpdate(exchange.Account{Equity: 100})
	require.Equal(t, StateEmergencyStopped, o.GetStatus().State)

	require.ErrorIs(t, o.Initialize(context.Background()), errs.ErrEmergencyStopped)
	require.ErrorIs(t, o.Start(context.Background()), errs.ErrEmergencyStopped)
}

func TestResolveParamsRejectsOversizedInvestment(t *testing.T) {
	o, _ := newTestController(t, 500)
	o.balance = 500

	phase := config.PhaseSpec{Name: "initial", Leverage: 2}
	spec := config.StrategySpec{Type: "grid", Weight: 1, Parameters: map[string]float64{"investment": 5000}}

	_, err := o.resolveParams(phase, spec)
	var ibe *errs.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	require.InDelta(t, 5000, ibe.Required, 1e-9)
	require.InDelta(t, 500, ibe.Available, 1e-9)
}

func TestResolveParamsFractionAndLeverage(t *testing.T) {
	o, _ := newTestController(t, 1000)
	o.balance = 1000

	phase := config.PhaseSpec{Name: "initial", Leverage: 3}
	spec := config.StrategySpec{Type: "grid", Weight: 0.5, Parameters: map[string]float64{"investment": 0.8}}

	params, err := o.resolveParams(phase, spec)
	require.NoError(t, err)
	// 0.8 of balance, halved by weight, one market.
	require.InDelta(t, 400, params["investment"], 1e-9)
	require.InDelta(t, 3, params["leverage"], 1e-9)
}
