package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/errs"
	"growth-core/internal/exchange"
)

// Deps bundles the collaborators a strategy may need. Market and Exec may be
// nil for signal-only instances (backtests, composition).
type Deps struct {
	Market exchange.MarketDataProvider
	Exec   exchange.OrderExecutionProvider
	Log    *zap.Logger
}

// Factory constructs, combines and (via the backtest optimizer) tunes
// strategy instances.
type Factory struct {
	deps Deps
}

// NewFactory creates a strategy factory.
func NewFactory(deps Deps) *Factory {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Factory{deps: deps}
}

// Create instantiates and initializes a strategy of the given type.
// Unknown types are a configuration error, never retried.
func (f *Factory) Create(ctx context.Context, typ, name, symbol string, params map[string]float64) (Strategy, error) {
	s, err := f.build(typ, name, symbol, params)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *Factory) build(typ, name, symbol string, params map[string]float64) (Strategy, error) {
	switch typ {
	case "grid":
		return NewGridStrategy(name, GridConfigFromParams(symbol, params), f.deps.Market, f.deps.Exec, f.deps.Log)
	case "momentum":
		return NewMomentumStrategy(name, MomentumConfigFromParams(symbol, params), f.deps.Log)
	default:
		return nil, errs.Configf("strategy.type", "unknown strategy type %q", typ)
	}
}

// Detached returns a factory without venue access. Instances it builds run
// signal-only, which is what backtests and the optimizer need.
func (f *Factory) Detached() *Factory {
	return &Factory{deps: Deps{Log: f.deps.Log}}
}

// Combine builds a weighted composite from already-constructed strategies.
func (f *Factory) Combine(name string, subs []Strategy, weights []float64) (*CombinedStrategy, error) {
	return NewCombinedStrategy(name, subs, weights)
}

// GridConfigFromParams maps loose YAML parameters onto a GridConfig.
func GridConfigFromParams(symbol string, p map[string]float64) GridConfig {
	cfg := GridConfig{
		Symbol:             symbol,
		Levels:             int(param(p, "levels", 10)),
		Spacing:            param(p, "spacing", 0.005),
		Investment:         param(p, "investment", 100),
		Leverage:           param(p, "leverage", 1),
		MinProfit:          param(p, "min_profit", 0.002),
		Fee:                param(p, "fee", 0.0005),
		DeviationThreshold: param(p, "deviation", 0.03),
	}
	if hours := param(p, "stale_hours", 1); hours > 0 {
		cfg.StaleAfter = time.Duration(hours * float64(time.Hour))
	}
	return cfg
}

// MomentumConfigFromParams maps loose YAML parameters onto a MomentumConfig.
func MomentumConfigFromParams(symbol string, p map[string]float64) MomentumConfig {
	return MomentumConfig{
		Symbol:            symbol,
		Window:            int(param(p, "window", 20)),
		MomentumThreshold: param(p, "momentum_threshold", 0.01),
		VolumeThreshold:   param(p, "volume_threshold", 1.5),
	}
}

// ParamsFromGridConfig is the inverse mapping, used by the optimizer.
func ParamsFromGridConfig(cfg GridConfig) map[string]float64 {
	return map[string]float64{
		"levels":     float64(cfg.Levels),
		"spacing":    cfg.Spacing,
		"investment": cfg.Investment,
		"leverage":   cfg.Leverage,
		"min_profit": cfg.MinProfit,
		"fee":        cfg.Fee,
		"deviation":  cfg.DeviationThreshold,
	}
}

// ParamsFromMomentumConfig is the inverse mapping, used by the optimizer.
func ParamsFromMomentumConfig(cfg MomentumConfig) map[string]float64 {
	return map[string]float64{
		"window":             float64(cfg.Window),
		"momentum_threshold": cfg.MomentumThreshold,
		"volume_threshold":   cfg.VolumeThreshold,
	}
}

func param(p map[string]float64, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}
