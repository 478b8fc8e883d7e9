package strategy

import (
	"context"
	"fmt"
	"sync"

	"growth-core/internal/exchange"
)

// combineThreshold is the minimum absolute weighted net below which
// disagreeing sub-strategies yield no trade.
const combineThreshold = 0.2

// CombinedStrategy blends sub-strategy signals by confidence-weighted vote.
type CombinedStrategy struct {
	name    string
	symbol  string
	subs    []Strategy
	weights []float64

	mu     sync.Mutex
	status Status
}

// NewCombinedStrategy builds a weighted composite. Strategies and weights
// must pair up one to one.
func NewCombinedStrategy(name string, subs []Strategy, weights []float64) (*CombinedStrategy, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("combined strategy requires at least one sub-strategy")
	}
	if len(subs) != len(weights) {
		return nil, fmt.Errorf("got %d strategies but %d weights", len(subs), len(weights))
	}
	var total float64
	for _, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("weights must be positive, got %v", w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("weights must sum to a positive value")
	}
	return &CombinedStrategy{
		name:    name,
		symbol:  subs[0].Symbol(),
		subs:    subs,
		weights: weights,
		status:  StatusUninitialized,
	}, nil
}

func (c *CombinedStrategy) Name() string   { return c.name }
func (c *CombinedStrategy) Symbol() string { return c.symbol }

func (c *CombinedStrategy) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *CombinedStrategy) Initialize(ctx context.Context) error {
	for _, s := range c.subs {
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("combined init %s: %w", s.Name(), err)
		}
	}
	c.mu.Lock()
	c.status = StatusRunning
	c.mu.Unlock()
	return nil
}

// OnTick collects each sub-signal and nets them: net = Σ(conf·weight·sign).
// A signal is emitted only when |net| clears the agreement threshold; its
// confidence is |net| / Σweights.
func (c *CombinedStrategy) OnTick(ctx context.Context, tick exchange.MarketData) (*Signal, error) {
	c.mu.Lock()
	if c.status != StatusRunning {
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()

	var net, totalWeight float64
	for i, s := range c.subs {
		totalWeight += c.weights[i]
		sig, err := s.OnTick(ctx, tick)
		if err != nil {
			return nil, fmt.Errorf("combined sub %s: %w", s.Name(), err)
		}
		if sig == nil {
			continue
		}
		net += sig.Confidence * c.weights[i] * sig.Direction.Sign()
	}

	absNet := net
	if absNet < 0 {
		absNet = -absNet
	}
	if absNet < combineThreshold {
		return nil, nil
	}

	dir := Long
	if net < 0 {
		dir = Short
	}
	return &Signal{
		Strategy:   c.name,
		Symbol:     c.symbol,
		Direction:  dir,
		Confidence: absNet / totalWeight,
		Price:      tick.Price,
		Note:       fmt.Sprintf("weighted net %.4f across %d strategies", net, len(c.subs)),
	}, nil
}

// OnFill forwards fills to any sub-strategy that manages orders.
func (c *CombinedStrategy) OnFill(ctx context.Context, fill exchange.Fill) error {
	for _, s := range c.subs {
		if fh, ok := s.(FillHandler); ok {
			if err := fh.OnFill(ctx, fill); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *CombinedStrategy) Stop(ctx context.Context) error {
	var firstErr error
	for _, s := range c.subs {
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.mu.Lock()
	c.status = StatusStopped
	c.mu.Unlock()
	return firstErr
}

// Subs exposes the underlying strategies for reporting.
func (c *CombinedStrategy) Subs() []Strategy { return c.subs }
