// Package performance tracks equity, drawdown and growth milestones for a
// single run.
package performance

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/backtest"
)

// Config seeds the tracker.
type Config struct {
	InitialCapital float64
	Milestones     []float64 // equity thresholds, any order; sorted on init
	Horizon        time.Duration
	RiskFreeDaily  float64
}

// State is the single performance snapshot per run. Invariants: PeakEquity ≥
// CurrentEquity and MaxDrawdown ≥ Drawdown, always.
type State struct {
	CurrentEquity       float64 `json:"current_equity"`
	PeakEquity          float64 `json:"peak_equity"`
	Drawdown            float64 `json:"drawdown"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	TotalPnL            float64 `json:"total_pnl"`
	TradeCount          int     `json:"trade_count"`
	WinRate             float64 `json:"win_rate"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	NextMilestone       float64 `json:"next_milestone"` // 0 once all are crossed
	RequiredDailyReturn float64 `json:"required_daily_return"`
}

// Tracker mutates the state on every trade fill and account update.
type Tracker struct {
	mu         sync.Mutex
	cfg        Config
	state      State
	milestones []float64
	nextIdx    int
	wins       int
	returns    []float64
	start      time.Time
	log        *zap.Logger

	now func() time.Time
}

// NewTracker primes the tracker with initial equity.
func NewTracker(cfg Config, log *zap.Logger) *Tracker {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 365 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	ms := append([]float64(nil), cfg.Milestones...)
	sort.Float64s(ms)

	t := &Tracker{
		cfg:        cfg,
		milestones: ms,
		log:        log.Named("performance"),
		now:        time.Now,
	}
	t.start = t.now()
	t.state = State{
		CurrentEquity: cfg.InitialCapital,
		PeakEquity:    cfg.InitialCapital,
	}
	t.advanceMilestoneLocked()
	return t
}

// OnAccountUpdate folds a new equity reading into the state.
func (t *Tracker) OnAccountUpdate(equity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev := t.state.CurrentEquity; prev > 0 {
		t.returns = append(t.returns, equity/prev-1)
		// Bounded history; Sharpe over the trailing year of samples.
		if len(t.returns) > 365 {
			t.returns = t.returns[1:]
		}
	}

	t.state.CurrentEquity = equity
	if equity > t.state.PeakEquity {
		t.state.PeakEquity = equity
	}
	if t.state.PeakEquity > 0 {
		t.state.Drawdown = (t.state.PeakEquity - equity) / t.state.PeakEquity
	}
	if t.state.Drawdown > t.state.MaxDrawdown {
		t.state.MaxDrawdown = t.state.Drawdown
	}
	t.state.TotalPnL = equity - t.cfg.InitialCapital
	t.state.SharpeRatio = backtest.Sharpe(t.returns, t.cfg.RiskFreeDaily)

	t.advanceMilestoneLocked()
}

// OnTrade folds a realized trade into the counters. pnl is net of fees.
func (t *Tracker) OnTrade(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.TradeCount++
	if pnl > 0 {
		t.wins++
	}
	t.state.WinRate = float64(t.wins) / float64(t.state.TradeCount)
}

// advanceMilestoneLocked moves the pointer past every crossed threshold and
// recomputes the projection for the next one.
func (t *Tracker) advanceMilestoneLocked() {
	for t.nextIdx < len(t.milestones) && t.state.CurrentEquity >= t.milestones[t.nextIdx] {
		t.log.Info("milestone crossed",
			zap.Float64("milestone", t.milestones[t.nextIdx]),
			zap.Float64("equity", t.state.CurrentEquity))
		t.nextIdx++
	}

	if t.nextIdx >= len(t.milestones) {
		t.state.NextMilestone = 0
		t.state.RequiredDailyReturn = 0
		return
	}

	target := t.milestones[t.nextIdx]
	t.state.NextMilestone = target

	daysRemaining := (t.cfg.Horizon - t.now().Sub(t.start)).Hours() / 24
	if daysRemaining < 1 {
		daysRemaining = 1
	}
	if t.state.CurrentEquity > 0 {
		t.state.RequiredDailyReturn = math.Pow(target/t.state.CurrentEquity, 1/daysRemaining) - 1
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
