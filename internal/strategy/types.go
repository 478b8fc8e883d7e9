package strategy

import (
	"context"

	"growth-core/internal/exchange"
)

// Direction of a trading signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for LONG, -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Signal is a decision emitted by a strategy. Confidence is in [0,1].
type Signal struct {
	Strategy   string    `json:"strategy"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Price      float64   `json:"price"`
	Note       string    `json:"note,omitempty"`
}

// Status is the lifecycle state of a strategy instance.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusRunning       Status = "running"
	StatusStopped       Status = "stopped"
)

// Strategy is the common engine contract. OnTick may return a nil signal;
// engines that manage their own order ladder trade as a side effect and only
// emit directional signals for composition.
type Strategy interface {
	Name() string
	Symbol() string
	Initialize(ctx context.Context) error
	OnTick(ctx context.Context, tick exchange.MarketData) (*Signal, error)
	Stop(ctx context.Context) error
	Status() Status
}

// FillHandler is implemented by engines that react to order fills. Fill
// callbacks are serialized per instance by the engine's own mutex.
type FillHandler interface {
	OnFill(ctx context.Context, fill exchange.Fill) error
}
