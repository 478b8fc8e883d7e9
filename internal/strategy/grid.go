package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/exchange"
	"growth-core/internal/grid"
)

// GridConfig configures a grid engine instance.
type GridConfig struct {
	Symbol             string
	Levels             int     // even; ladder has Levels+1 rungs
	Spacing            float64 // fractional distance between rungs
	Investment         float64 // capital allocated to the ladder
	Leverage           float64
	MinProfit          float64 // minimum profit per round trip
	Fee                float64 // taker fee fraction, priced into sell targets
	DeviationThreshold float64 // rebuild when price drifts this far from center
	StaleAfter         time.Duration
	DeRiskLossRatio    float64 // PnL/investment floor before de-risking
}

func (c *GridConfig) applyDefaults() {
	if c.StaleAfter == 0 {
		c.StaleAfter = time.Hour
	}
	if c.DeviationThreshold == 0 {
		c.DeviationThreshold = 0.03
	}
	if c.DeRiskLossRatio == 0 {
		c.DeRiskLossRatio = -0.05
	}
}

// TrackedOrder lives in the per-strategy order table until filled or
// canceled.
type TrackedOrder struct {
	ID         string
	Side       exchange.Side
	LevelPrice float64 // associated grid level; 0 for refill orders
	PairPrice  float64 // entry a sell closes against
	Price      float64
	Size       float64
	CreatedAt  time.Time
}

// GridStrategy maintains a ladder of resting buy/sell pairs around the
// current price. The ladder is replaced wholesale on rebuild, never patched.
//
// With a nil executor the engine runs signal-only: it still tracks the
// ladder shape and emits mean-reversion signals, which is what the backtester
// and the combined strategy consume.
type GridStrategy struct {
	name   string
	cfg    GridConfig
	market exchange.MarketDataProvider
	exec   exchange.OrderExecutionProvider
	log    *zap.Logger

	mu        sync.Mutex
	status    Status
	levels    []grid.Level
	orders    map[string]*TrackedOrder
	realized  float64
	lastPrice float64
	rebuilds  int

	now func() time.Time
}

// NewGridStrategy builds a grid engine. market and exec may be nil for
// signal-only use.
func NewGridStrategy(name string, cfg GridConfig, market exchange.MarketDataProvider, exec exchange.OrderExecutionProvider, log *zap.Logger) (*GridStrategy, error) {
	cfg.applyDefaults()
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("grid strategy requires a symbol")
	}
	if cfg.Levels <= 0 || cfg.Levels%2 != 0 {
		return nil, fmt.Errorf("grid level count must be positive and even, got %d", cfg.Levels)
	}
	if cfg.Spacing <= 0 || cfg.Investment <= 0 || cfg.Leverage <= 0 {
		return nil, fmt.Errorf("grid spacing, investment and leverage must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GridStrategy{
		name:   name,
		cfg:    cfg,
		market: market,
		exec:   exec,
		log:    log.Named("grid").With(zap.String("symbol", cfg.Symbol)),
		status: StatusUninitialized,
		orders: make(map[string]*TrackedOrder),
		now:    time.Now,
	}, nil
}

func (g *GridStrategy) Name() string   { return g.name }
func (g *GridStrategy) Symbol() string { return g.cfg.Symbol }

func (g *GridStrategy) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Initialize builds the initial ladder around the live price and places the
// resting orders. Without a market provider the ladder is built lazily on the
// first tick.
func (g *GridStrategy) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status == StatusRunning {
		return nil
	}

	if g.market != nil {
		md, err := g.market.GetMarketData(ctx, g.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("grid init %s: %w", g.cfg.Symbol, err)
		}
		g.lastPrice = md.Price
		if err := g.rebuildLocked(ctx, md.Price); err != nil {
			return err
		}
	}

	g.status = StatusRunning
	return nil
}

// sellTarget prices the paired sell so a round trip clears fees and the
// configured minimum profit.
func (g *GridStrategy) sellTarget(entry float64) float64 {
	markup := g.cfg.Spacing
	if m := g.cfg.MinProfit + g.cfg.Fee; m > markup {
		markup = m
	}
	return entry * (1 + markup)
}

// rebuildLocked cancels every tracked order and rebuilds the whole ladder
// around ref. Cancel failures are logged and skipped; the stale-order sweep
// catches orphans later.
func (g *GridStrategy) rebuildLocked(ctx context.Context, ref float64) error {
	g.cancelAllLocked(ctx)

	levels, err := grid.Build(grid.Params{
		ReferencePrice: ref,
		Levels:         g.cfg.Levels,
		Spacing:        g.cfg.Spacing,
		Investment:     g.cfg.Investment,
		Leverage:       g.cfg.Leverage,
	})
	if err != nil {
		return fmt.Errorf("build grid: %w", err)
	}
	g.levels = levels
	g.rebuilds++

	if g.exec == nil {
		return nil
	}

	for _, lvl := range levels {
		buy, err := g.exec.PlaceOrder(ctx, exchange.OrderParams{
			Market: g.cfg.Symbol,
			Side:   exchange.Buy,
			Type:   exchange.Limit,
			Price:  lvl.Price,
			Size:   lvl.BuySize,
		})
		if err != nil {
			g.log.Warn("grid buy placement failed", zap.Float64("price", lvl.Price), zap.Error(err))
			continue
		}
		g.orders[buy.ID] = &TrackedOrder{
			ID:         buy.ID,
			Side:       exchange.Buy,
			LevelPrice: lvl.Price,
			Price:      lvl.Price,
			Size:       lvl.BuySize,
			CreatedAt:  g.now(),
		}

		sellPrice := g.sellTarget(lvl.Price)
		sell, err := g.exec.PlaceOrder(ctx, exchange.OrderParams{
			Market: g.cfg.Symbol,
			Side:   exchange.Sell,
			Type:   exchange.Limit,
			Price:  sellPrice,
			Size:   lvl.SellSize,
		})
		if err != nil {
			g.log.Warn("grid sell placement failed", zap.Float64("price", sellPrice), zap.Error(err))
			continue
		}
		g.orders[sell.ID] = &TrackedOrder{
			ID:         sell.ID,
			Side:       exchange.Sell,
			LevelPrice: lvl.Price,
			PairPrice:  lvl.Price,
			Price:      sellPrice,
			Size:       lvl.SellSize,
			CreatedAt:  g.now(),
		}
	}

	g.log.Info("grid rebuilt",
		zap.Float64("reference", ref),
		zap.Int("levels", len(levels)),
		zap.Int("orders", len(g.orders)))
	return nil
}

func (g *GridStrategy) cancelAllLocked(ctx context.Context) {
	if g.exec == nil {
		g.orders = make(map[string]*TrackedOrder)
		return
	}
	for id := range g.orders {
		if err := g.exec.CancelOrder(ctx, id); err != nil {
			g.log.Warn("grid cancel failed", zap.String("order", id), zap.Error(err))
		}
		delete(g.orders, id)
	}
}

// OnTick rebuilds the ladder when price escapes the deviation band and emits
// a mean-reversion signal when price sits away from the ladder center.
func (g *GridStrategy) OnTick(ctx context.Context, tick exchange.MarketData) (*Signal, error) {
	if tick.Symbol != g.cfg.Symbol || tick.Price <= 0 {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning {
		return nil, nil
	}
	g.lastPrice = tick.Price

	if len(g.levels) == 0 {
		if err := g.rebuildLocked(ctx, tick.Price); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if grid.Deviation(g.levels, tick.Price) > g.cfg.DeviationThreshold {
		if err := g.rebuildLocked(ctx, tick.Price); err != nil {
			return nil, err
		}
		return nil, nil
	}

	center := grid.Center(g.levels)
	dev := (tick.Price - center) / center
	if dev > -g.cfg.Spacing && dev < g.cfg.Spacing {
		return nil, nil
	}

	// Price below center: the ladder is net long inventory, expect reversion.
	dir := Long
	mag := -dev
	if dev > 0 {
		dir = Short
		mag = dev
	}
	conf := mag / g.cfg.DeviationThreshold
	if conf > 1 {
		conf = 1
	}
	return &Signal{
		Strategy:   g.name,
		Symbol:     g.cfg.Symbol,
		Direction:  dir,
		Confidence: conf,
		Price:      tick.Price,
		Note:       fmt.Sprintf("grid reversion, deviation %.4f", dev),
	}, nil
}

// OnFill replaces the consumed side of a pair: a filled buy spawns a sell one
// profit step above the fill, a filled sell spawns a buy one spacing below.
func (g *GridStrategy) OnFill(ctx context.Context, fill exchange.Fill) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[fill.OrderID]
	if !ok {
		return nil // not ours
	}
	delete(g.orders, fill.OrderID)

	if g.status != StatusRunning || g.exec == nil {
		return nil
	}

	switch fill.Side {
	case exchange.Buy:
		sellPrice := g.sellTarget(fill.Price)
		ref, err := g.exec.PlaceOrder(ctx, exchange.OrderParams{
			Market: g.cfg.Symbol,
			Side:   exchange.Sell,
			Type:   exchange.Limit,
			Price:  sellPrice,
			Size:   fill.Size,
		})
		if err != nil {
			return fmt.Errorf("grid pair sell after buy fill: %w", err)
		}
		g.orders[ref.ID] = &TrackedOrder{
			ID:        ref.ID,
			Side:      exchange.Sell,
			PairPrice: fill.Price,
			Price:     sellPrice,
			Size:      fill.Size,
			CreatedAt: g.now(),
		}

	case exchange.Sell:
		if o.PairPrice > 0 {
			g.realized += (fill.Price - o.PairPrice) * fill.Size
		}
		buyPrice := fill.Price * (1 - g.cfg.Spacing)
		ref, err := g.exec.PlaceOrder(ctx, exchange.OrderParams{
			Market: g.cfg.Symbol,
			Side:   exchange.Buy,
			Type:   exchange.Limit,
			Price:  buyPrice,
			Size:   fill.Size,
		})
		if err != nil {
			return fmt.Errorf("grid refill buy after sell fill: %w", err)
		}
		g.orders[ref.ID] = &TrackedOrder{
			ID:        ref.ID,
			Side:      exchange.Buy,
			Price:     buyPrice,
			Size:      fill.Size,
			CreatedAt: g.now(),
		}
	}
	return nil
}

// HealthCheck cancels stale orders and de-risks the ladder when cumulative
// losses exceed the configured floor: leverage down 20%, spacing up 20%, then
// a full rebuild around the last price.
func (g *GridStrategy) HealthCheck(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning {
		return
	}

	cutoff := g.now().Add(-g.cfg.StaleAfter)
	for id, o := range g.orders {
		if o.CreatedAt.Before(cutoff) {
			if g.exec != nil {
				if err := g.exec.CancelOrder(ctx, id); err != nil {
					g.log.Warn("stale order cancel failed", zap.String("order", id), zap.Error(err))
					continue
				}
			}
			delete(g.orders, id)
			g.log.Info("stale order canceled", zap.String("order", id), zap.Duration("age", g.now().Sub(o.CreatedAt)))
		}
	}

	if g.cfg.Investment > 0 && g.realized/g.cfg.Investment < g.cfg.DeRiskLossRatio {
		g.cfg.Leverage *= 0.8
		g.cfg.Spacing *= 1.2
		g.log.Warn("grid de-risking",
			zap.Float64("realized_pnl", g.realized),
			zap.Float64("new_leverage", g.cfg.Leverage),
			zap.Float64("new_spacing", g.cfg.Spacing))
		if g.lastPrice > 0 {
			if err := g.rebuildLocked(ctx, g.lastPrice); err != nil {
				g.log.Error("de-risk rebuild failed", zap.Error(err))
			}
		}
	}
}

// Stop cancels all tracked orders best-effort and halts the engine.
func (g *GridStrategy) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status == StatusStopped {
		return nil
	}
	g.cancelAllLocked(ctx)
	g.levels = nil
	g.status = StatusStopped
	return nil
}

// GridSnapshot is the research/status view of a grid instance.
type GridSnapshot struct {
	Symbol      string  `json:"symbol"`
	Status      Status  `json:"status"`
	Levels      int     `json:"levels"`
	OpenOrders  int     `json:"open_orders"`
	RealizedPnL float64 `json:"realized_pnl"`
	LastPrice   float64 `json:"last_price"`
	Rebuilds    int     `json:"rebuilds"`
	Spacing     float64 `json:"spacing"`
	Leverage    float64 `json:"leverage"`
}

// Snapshot returns a point-in-time view for reporting.
func (g *GridStrategy) Snapshot() GridSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GridSnapshot{
		Symbol:      g.cfg.Symbol,
		Status:      g.status,
		Levels:      len(g.levels),
		OpenOrders:  len(g.orders),
		RealizedPnL: g.realized,
		LastPrice:   g.lastPrice,
		Rebuilds:    g.rebuilds,
		Spacing:     g.cfg.Spacing,
		Leverage:    g.cfg.Leverage,
	}
}

// OpenOrders returns a copy of the order table for inspection.
func (g *GridStrategy) OpenOrders() []TrackedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TrackedOrder, 0, len(g.orders))
	for _, o := range g.orders {
		out = append(out, *o)
	}
	return out
}
