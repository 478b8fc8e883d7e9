package strategy

import (
	"context"
	"fmt"
	"sync"

	"growth-core/internal/exchange"
)

// fakeExec records every order and cancel; IDs are sequential.
type fakeExec struct {
	mu       sync.Mutex
	seq      int
	placed   []exchange.OrderParams
	canceled []string
	failNext bool
}

func (f *fakeExec) PlaceOrder(_ context.Context, params exchange.OrderParams) (exchange.OrderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return exchange.OrderRef{}, fmt.Errorf("venue rejected order")
	}
	f.seq++
	id := fmt.Sprintf("ord-%d", f.seq)
	f.placed = append(f.placed, params)
	return exchange.OrderRef{ID: id, Market: params.Market, Side: params.Side, Price: params.Price, Size: params.Size}, nil
}

func (f *fakeExec) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeExec) SetLeverage(context.Context, string, float64) error { return nil }

func (f *fakeExec) lastPlaced() exchange.OrderParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placed[len(f.placed)-1]
}

func (f *fakeExec) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// stubStrategy emits a fixed signal on every tick.
type stubStrategy struct {
	name   string
	symbol string
	signal *Signal
	fills  []exchange.Fill
}

func (s *stubStrategy) Name() string                    { return s.name }
func (s *stubStrategy) Symbol() string                  { return s.symbol }
func (s *stubStrategy) Initialize(context.Context) error { return nil }
func (s *stubStrategy) Stop(context.Context) error       { return nil }
func (s *stubStrategy) Status() Status                   { return StatusRunning }

func (s *stubStrategy) OnTick(context.Context, exchange.MarketData) (*Signal, error) {
	return s.signal, nil
}

func (s *stubStrategy) OnFill(_ context.Context, fill exchange.Fill) error {
	s.fills = append(s.fills, fill)
	return nil
}
