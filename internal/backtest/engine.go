// Package backtest replays historical bars through a strategy instance and
// measures how it would have performed.
package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/exchange"
	"growth-core/internal/strategy"
)

// warmupBars is how many bars feed the strategy before its signals are
// trusted.
const warmupBars = 100

// Config tunes a backtest run.
type Config struct {
	InitialCapital   float64
	FeeRate          float64 // fee on notional per side
	Slippage         float64 // price multiplier on fills
	RiskFreeDaily    float64
	PositionFraction float64 // fraction of equity per trade, scaled by confidence
}

func (c *Config) applyDefaults() {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10000
	}
	if c.PositionFraction <= 0 {
		c.PositionFraction = 0.1
	}
}

// Trade is one entry/exit round trip.
type Trade struct {
	Symbol    string             `json:"symbol"`
	Direction strategy.Direction `json:"direction"`
	Entry     float64            `json:"entry"`
	Exit      float64            `json:"exit"`
	Size      float64            `json:"size"`
	PnL       float64            `json:"pnl"` // net of fees
	OpenedAt  time.Time          `json:"opened_at"`
	ClosedAt  time.Time          `json:"closed_at"`
}

// Result is the full backtest report for a strategy.
type Result struct {
	Strategy       string    `json:"strategy"`
	Symbol         string    `json:"symbol"`
	Bars           int       `json:"bars"`
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalPnL       float64   `json:"total_pnl"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	SortinoRatio   float64   `json:"sortino_ratio"`
	WinRate        float64   `json:"win_rate"`
	ProfitFactor   float64   `json:"profit_factor"`
	TradeCount     int       `json:"trade_count"`
	Trades         []Trade   `json:"-"`
	EquityCurve    []float64 `json:"-"`
	RanAt          time.Time `json:"ran_at"`
}

// Engine replays bars through strategies.
type Engine struct {
	cfg Config
	log *zap.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(cfg Config, log *zap.Logger) *Engine {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log.Named("backtest")}
}

// openPosition is the single simulated position during a replay.
type openPosition struct {
	symbol    string
	direction strategy.Direction
	entry     float64
	size      float64
	openedAt  time.Time
}

// Run replays bars through s. The first warmupBars bars only feed the
// strategy; signals during warm-up are discarded. A signal fills only when
// the slipped price lands inside that bar's high/low range.
func (e *Engine) Run(ctx context.Context, s strategy.Strategy, bars []exchange.OHLCV) (*Result, error) {
	if len(bars) <= warmupBars {
		return nil, fmt.Errorf("backtest needs more than %d bars, got %d", warmupBars, len(bars))
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("backtest init: %w", err)
	}
	defer func() { _ = s.Stop(context.WithoutCancel(ctx)) }()

	equity := e.cfg.InitialCapital
	curve := make([]float64, 0, len(bars))
	var pos *openPosition
	var trades []Trade

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tick := exchange.MarketData{
			Symbol: s.Symbol(),
			Price:  bar.Close,
			Volume: bar.Volume,
			Bid:    bar.Close,
			Ask:    bar.Close,
		}
		sig, err := s.OnTick(ctx, tick)
		if err != nil {
			return nil, fmt.Errorf("backtest tick %d: %w", i, err)
		}
		if i < warmupBars {
			curve = append(curve, equity)
			continue
		}

		if sig != nil {
			equity, pos, trades = e.applySignal(sig, bar, equity, pos, trades)
		}

		// Mark to market at the bar close.
		mtm := equity
		if pos != nil {
			mtm += unrealized(pos, bar.Close)
		}
		curve = append(curve, mtm)
	}

	// Close any open position on the last bar.
	if pos != nil {
		last := bars[len(bars)-1]
		equity += e.closePosition(pos, last.Close, last.Time, &trades)
		pos = nil
		curve[len(curve)-1] = equity
	}

	returns := Returns(curve[warmupBars:])
	res := &Result{
		Strategy:       s.Name(),
		Symbol:         s.Symbol(),
		Bars:           len(bars),
		InitialCapital: e.cfg.InitialCapital,
		FinalEquity:    equity,
		TotalPnL:       equity - e.cfg.InitialCapital,
		MaxDrawdown:    MaxDrawdown(curve),
		SharpeRatio:    Sharpe(returns, e.cfg.RiskFreeDaily),
		SortinoRatio:   Sortino(returns, e.cfg.RiskFreeDaily),
		TradeCount:     len(trades),
		Trades:         trades,
		EquityCurve:    curve,
		RanAt:          time.Now(),
	}
	res.WinRate, res.ProfitFactor = tradeStats(trades)

	e.log.Info("backtest complete",
		zap.String("strategy", s.Name()),
		zap.Int("bars", len(bars)),
		zap.Int("trades", len(trades)),
		zap.Float64("pnl", res.TotalPnL),
		zap.Float64("sharpe", res.SharpeRatio))
	return res, nil
}

// applySignal opens or flips the simulated position when the slipped price is
// fillable within the bar.
func (e *Engine) applySignal(sig *strategy.Signal, bar exchange.OHLCV, equity float64, pos *openPosition, trades []Trade) (float64, *openPosition, []Trade) {
	// Slippage works against the trade.
	fillPrice := bar.Close * (1 + e.cfg.Slippage)
	if sig.Direction == strategy.Short {
		fillPrice = bar.Close * (1 - e.cfg.Slippage)
	}
	if fillPrice < bar.Low || fillPrice > bar.High {
		return equity, pos, trades // no fill this bar
	}

	if pos != nil {
		if pos.direction == sig.Direction {
			return equity, pos, trades // already positioned this way
		}
		equity += e.closePosition(pos, fillPrice, bar.Time, &trades)
		pos = nil
	}

	size := equity * e.cfg.PositionFraction * sig.Confidence / fillPrice
	if size <= 0 {
		return equity, nil, trades
	}
	equity -= fillPrice * size * e.cfg.FeeRate // entry fee
	pos = &openPosition{
		symbol:    sig.Symbol,
		direction: sig.Direction,
		entry:     fillPrice,
		size:      size,
		openedAt:  bar.Time,
	}
	return equity, pos, trades
}

// closePosition realizes PnL net of the exit fee and records the trade.
func (e *Engine) closePosition(pos *openPosition, price float64, at time.Time, trades *[]Trade) float64 {
	gross := unrealized(pos, price)
	fee := price * pos.size * e.cfg.FeeRate
	net := gross - fee
	*trades = append(*trades, Trade{
		Symbol:    pos.symbol,
		Direction: pos.direction,
		Entry:     pos.entry,
		Exit:      price,
		Size:      pos.size,
		PnL:       net,
		OpenedAt:  pos.openedAt,
		ClosedAt:  at,
	})
	return net
}

func unrealized(pos *openPosition, price float64) float64 {
	diff := price - pos.entry
	if pos.direction == strategy.Short {
		diff = -diff
	}
	return diff * pos.size
}

func tradeStats(trades []Trade) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	var wins int
	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			grossWin += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	winRate = float64(wins) / float64(len(trades))
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = grossWin
	}
	return winRate, profitFactor
}
