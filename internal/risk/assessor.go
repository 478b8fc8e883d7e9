// Package risk bounds what the strategies are allowed to do, per trade and
// across the whole portfolio.
package risk

import (
	"fmt"

	"go.uber.org/zap"

	"growth-core/internal/backtest"
	"growth-core/internal/strategy"
)

// scoreLimit is the risk-score ceiling; trades scoring at or above it are
// rejected.
const scoreLimit = 0.7

// AssessorConfig tunes the trade-level acceptance test.
type AssessorConfig struct {
	MaxPositionSize float64 // max notional as a fraction of equity
	VolatilityLimit float64 // annualized volatility gate
	StopLossPct     float64
	// Kelly inputs are configurable defaults, not live statistics.
	KellyWinRate     float64
	KellyPayoffRatio float64
}

func (c *AssessorConfig) applyDefaults() {
	if c.MaxPositionSize <= 0 {
		c.MaxPositionSize = 0.1
	}
	if c.VolatilityLimit <= 0 {
		c.VolatilityLimit = 1.5
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.02
	}
	if c.KellyWinRate <= 0 {
		c.KellyWinRate = 0.55
	}
	if c.KellyPayoffRatio <= 0 {
		c.KellyPayoffRatio = 1.5
	}
}

// Proposal is a trade the assessor is asked to accept or reject.
type Proposal struct {
	Symbol       string
	Direction    strategy.Direction
	Price        float64
	Equity       float64
	Confidence   float64   // from the originating signal, in [0,1]
	RecentPrices []float64 // used for realized volatility
}

// Assessment is the ephemeral per-trade verdict.
type Assessment struct {
	Acceptable   bool    `json:"is_acceptable"`
	Reason       string  `json:"reason,omitempty"`
	RiskScore    float64 `json:"risk_score"`
	PositionSize float64 `json:"position_size"` // units of the asset
	Volatility   float64 `json:"volatility"`
	StopLoss     float64 `json:"stop_loss"`
}

// Assessor runs the trade-level acceptance test.
type Assessor struct {
	cfg    AssessorConfig
	scorer Scorer
	log    *zap.Logger
}

// NewAssessor builds an assessor. A nil scorer falls back to the built-in
// linear model.
func NewAssessor(cfg AssessorConfig, scorer Scorer, log *zap.Logger) *Assessor {
	cfg.applyDefaults()
	if scorer == nil {
		scorer = NewDefaultScorer()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assessor{cfg: cfg, scorer: scorer, log: log.Named("risk")}
}

// kellyFraction is the half-Kelly position fraction from the configured win
// rate and payoff ratio.
func (a *Assessor) kellyFraction() float64 {
	w := a.cfg.KellyWinRate
	f := 0.5 * (w - (1-w)/a.cfg.KellyPayoffRatio)
	if f < 0 {
		return 0
	}
	return f
}

// Assess accepts or rejects a proposal. A rejection is a deliberate negative
// decision, not a fault; it is logged at info level. The stop loss is always
// populated.
func (a *Assessor) Assess(p Proposal) Assessment {
	out := Assessment{StopLoss: p.Price * (1 - a.cfg.StopLossPct)}
	if p.Price <= 0 || p.Equity <= 0 {
		out.Reason = "price and equity must be positive"
		return out
	}

	size := a.kellyFraction() * p.Equity / p.Price
	out.PositionSize = size

	if size*p.Price > a.cfg.MaxPositionSize*p.Equity {
		out.Reason = fmt.Sprintf("position notional %.2f exceeds %.0f%% of equity",
			size*p.Price, a.cfg.MaxPositionSize*100)
		a.reject(p, out.Reason)
		return out
	}

	vol := backtest.AnnualizedVolatility(backtest.Returns(p.RecentPrices))
	out.Volatility = vol
	if vol > a.cfg.VolatilityLimit {
		out.Reason = fmt.Sprintf("volatility %.2f exceeds limit %.2f", vol, a.cfg.VolatilityLimit)
		a.reject(p, out.Reason)
		return out
	}

	features := []float64{
		vol / a.cfg.VolatilityLimit,
		size * p.Price / p.Equity / a.cfg.MaxPositionSize,
		1 - p.Confidence,
	}
	score := a.scorer.Score(features)
	out.RiskScore = score
	if score >= scoreLimit {
		out.Reason = fmt.Sprintf("risk score %.2f at or above limit %.2f", score, scoreLimit)
		a.reject(p, out.Reason)
		return out
	}

	out.Acceptable = true
	return out
}

func (a *Assessor) reject(p Proposal, reason string) {
	a.log.Info("trade rejected",
		zap.String("symbol", p.Symbol),
		zap.String("direction", string(p.Direction)),
		zap.String("reason", reason))
}
