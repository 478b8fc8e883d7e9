package risk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"growth-core/internal/exchange"
)

// PortfolioConfig tunes aggregate leverage and liquidation control.
type PortfolioConfig struct {
	MaxDrawdownBudget float64 // ceiling on Σ(|size|·leverage)/equity
	LiquidationBuffer float64 // minimum |liq − price| / price
	MaxPositionSize   float64 // per-position notional cap, fraction of equity
}

func (c *PortfolioConfig) applyDefaults() {
	if c.MaxDrawdownBudget <= 0 {
		c.MaxDrawdownBudget = 0.25
	}
	if c.LiquidationBuffer <= 0 {
		c.LiquidationBuffer = 0.05
	}
	if c.MaxPositionSize <= 0 {
		c.MaxPositionSize = 0.1
	}
}

// Portfolio controls leverage and liquidation risk across open positions.
// Positions are read-only views from the account boundary; every adjustment
// goes back through the order executor.
type Portfolio struct {
	cfg     PortfolioConfig
	account exchange.AccountProvider
	exec    exchange.OrderExecutionProvider
	log     *zap.Logger
}

// NewPortfolio builds the portfolio risk service.
func NewPortfolio(cfg PortfolioConfig, account exchange.AccountProvider, exec exchange.OrderExecutionProvider, log *zap.Logger) *Portfolio {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Portfolio{cfg: cfg, account: account, exec: exec, log: log.Named("portfolio")}
}

// TotalRisk computes Σ(|notional|·leverage)/equity over the open positions.
func TotalRisk(positions []exchange.Position, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	var sum float64
	for _, p := range positions {
		lev := p.Leverage
		if lev <= 0 {
			lev = 1
		}
		sum += abs(p.Size) * p.EntryPrice * lev
	}
	return sum / equity
}

// Rebalance trims every position toward an equal risk share when total risk
// exceeds the drawdown budget. Sizing adjustments are proportional; trims go
// out reduce-only.
func (s *Portfolio) Rebalance(ctx context.Context) error {
	acct, err := s.account.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("rebalance account fetch: %w", err)
	}
	positions, err := s.account.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("rebalance positions fetch: %w", err)
	}
	if len(positions) == 0 || acct.Equity <= 0 {
		return nil
	}

	total := TotalRisk(positions, acct.Equity)
	if total <= s.cfg.MaxDrawdownBudget {
		return nil
	}

	targetShare := s.cfg.MaxDrawdownBudget / float64(len(positions))
	s.log.Warn("portfolio risk over budget, rebalancing",
		zap.Float64("total_risk", total),
		zap.Float64("budget", s.cfg.MaxDrawdownBudget))

	for _, pos := range positions {
		lev := pos.Leverage
		if lev <= 0 {
			lev = 1
		}
		current := abs(pos.Size) * pos.EntryPrice * lev / acct.Equity
		if current <= targetShare {
			continue
		}
		// Shrink size proportionally so this position lands on its share.
		trim := abs(pos.Size) * (1 - targetShare/current)
		if err := s.reduce(ctx, pos, trim); err != nil {
			s.log.Warn("rebalance trim failed", zap.String("market", pos.Market), zap.Error(err))
		}
	}
	return nil
}

// OnMarkPrice enforces the liquidation buffer for one market: first reduce
// leverage by 30%, and when the buffer is still too thin, cut size by 30%
// reduce-only. Finally the hard per-position cap is applied.
func (s *Portfolio) OnMarkPrice(ctx context.Context, market string, price float64) error {
	if price <= 0 {
		return nil
	}
	acct, err := s.account.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("mark price account fetch: %w", err)
	}
	positions, err := s.account.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("mark price positions fetch: %w", err)
	}

	for _, pos := range positions {
		if pos.Market != market || pos.Size == 0 {
			continue
		}

		if buffer(pos, price) < s.cfg.LiquidationBuffer {
			newLev := pos.Leverage * 0.7
			if newLev < 1 {
				newLev = 1
			}
			s.log.Warn("liquidation buffer thin, reducing leverage",
				zap.String("market", market),
				zap.Float64("buffer", buffer(pos, price)),
				zap.Float64("new_leverage", newLev))
			if err := s.exec.SetLeverage(ctx, market, newLev); err != nil {
				return fmt.Errorf("reduce leverage %s: %w", market, err)
			}

			// Re-read the position: leverage changes move the liquidation
			// price.
			refreshed, err := s.position(ctx, market)
			if err != nil {
				return err
			}
			if refreshed != nil && buffer(*refreshed, price) < s.cfg.LiquidationBuffer {
				trim := abs(refreshed.Size) * 0.3
				s.log.Warn("buffer still thin, cutting size",
					zap.String("market", market),
					zap.Float64("trim", trim))
				if err := s.reduce(ctx, *refreshed, trim); err != nil {
					return fmt.Errorf("reduce size %s: %w", market, err)
				}
			}
		}

		// Hard cap regardless of buffer state.
		if acct.Equity > 0 {
			notional := abs(pos.Size) * price
			capNotional := s.cfg.MaxPositionSize * acct.Equity
			if notional > capNotional {
				excess := (notional - capNotional) / price
				s.log.Warn("position over hard cap, trimming",
					zap.String("market", market),
					zap.Float64("excess", excess))
				if err := s.reduce(ctx, pos, excess); err != nil {
					return fmt.Errorf("cap trim %s: %w", market, err)
				}
			}
		}
	}
	return nil
}

func (s *Portfolio) position(ctx context.Context, market string) (*exchange.Position, error) {
	positions, err := s.account.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("position refresh %s: %w", market, err)
	}
	for i := range positions {
		if positions[i].Market == market {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// reduce shrinks a position by qty units with a reduce-only market order.
func (s *Portfolio) reduce(ctx context.Context, pos exchange.Position, qty float64) error {
	if qty <= 0 {
		return nil
	}
	side := exchange.Sell
	if pos.Size < 0 {
		side = exchange.Buy
	}
	_, err := s.exec.PlaceOrder(ctx, exchange.OrderParams{
		Market:     pos.Market,
		Side:       side,
		Type:       exchange.Market,
		Size:       qty,
		ReduceOnly: true,
	})
	return err
}

// buffer is the fractional distance to the liquidation price.
func buffer(pos exchange.Position, price float64) float64 {
	if pos.LiquidationPrice <= 0 || price <= 0 {
		return 1 // no leverage, effectively unreachable
	}
	return abs(pos.LiquidationPrice-price) / price
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
