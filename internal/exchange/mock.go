package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Mock simulates a venue for local development and tests: a random-walk
// price per symbol, immediate market fills, and resting limit orders filled
// when the walk crosses their price.
type Mock struct {
	mu        sync.RWMutex
	prices    map[string]float64
	positions map[string]Position
	open      map[string]OrderParams // resting limit orders by id
	equity    float64

	accountSubs map[int]func(Account)
	fillSubs    map[int]func(Fill)
	nextSub     int

	Step  time.Duration // tick interval, default 100ms
	Drift float64       // per-tick stddev as fraction of price

	failures atomic.Int32 // fail the next N calls, for retry tests
}

// FailNextCalls makes the next n account/market/order calls return an error.
func (m *Mock) FailNextCalls(n int) { m.failures.Store(int32(n)) }

// NewMock seeds a mock venue with starting prices and equity.
func NewMock(equity float64, startPrices map[string]float64) *Mock {
	prices := make(map[string]float64, len(startPrices))
	for s, p := range startPrices {
		prices[s] = p
	}
	return &Mock{
		prices:      prices,
		positions:   make(map[string]Position),
		open:        make(map[string]OrderParams),
		equity:      equity,
		accountSubs: make(map[int]func(Account)),
		fillSubs:    make(map[int]func(Fill)),
		Step:        100 * time.Millisecond,
		Drift:       0.0008,
	}
}

// Run walks prices and matches resting orders until ctx is done.
func (m *Mock) Run(ctx context.Context) {
	t := time.NewTicker(m.Step)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick()
		}
	}
}

func (m *Mock) tick() {
	m.mu.Lock()
	var fills []Fill
	for sym, p := range m.prices {
		p *= 1 + (rand.Float64()*2-1)*m.Drift
		m.prices[sym] = p
		for id, o := range m.open {
			if o.Market != sym {
				continue
			}
			crossed := (o.Side == Buy && p <= o.Price) || (o.Side == Sell && p >= o.Price)
			if crossed {
				delete(m.open, id)
				pnl := m.applyFillLocked(o, o.Price)
				fills = append(fills, Fill{OrderID: id, Market: o.Market, Side: o.Side, Price: o.Price, Size: o.Size, PnL: pnl})
			}
		}
	}
	acct := m.accountLocked()
	accountSubs := snapshot(m.accountSubs)
	fillSubs := snapshot(m.fillSubs)
	m.mu.Unlock()

	for _, f := range fills {
		for _, cb := range fillSubs {
			cb(f)
		}
	}
	if len(fills) > 0 {
		for _, cb := range accountSubs {
			cb(acct)
		}
	}
}

func snapshot[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (m *Mock) applyFillLocked(o OrderParams, price float64) (realized float64) {
	pos := m.positions[o.Market]
	pos.Market = o.Market
	delta := o.Size
	if o.Side == Sell {
		delta = -o.Size
	}
	newSize := pos.Size + delta
	if pos.Size == 0 || sameSign(pos.Size, newSize) && abs(newSize) > abs(pos.Size) {
		// Opening or adding: blend the entry.
		total := abs(pos.Size) + o.Size
		if total > 0 {
			pos.EntryPrice = (pos.EntryPrice*abs(pos.Size) + price*o.Size) / total
		}
	} else {
		// Reducing or flipping: realize PnL against the entry.
		closed := minf(abs(pos.Size), o.Size)
		pnl := closed * (price - pos.EntryPrice)
		if pos.Size < 0 {
			pnl = -pnl
		}
		m.equity += pnl
		realized = pnl
		if !sameSign(pos.Size, newSize) && newSize != 0 {
			pos.EntryPrice = price
		}
	}
	pos.Size = newSize
	if pos.Leverage == 0 {
		pos.Leverage = 1
	}
	pos.LiquidationPrice = liquidationFor(pos, price)
	if newSize == 0 {
		delete(m.positions, o.Market)
	} else {
		m.positions[o.Market] = pos
	}
	return realized
}

// liquidationFor approximates the force-close price from leverage.
func liquidationFor(pos Position, price float64) float64 {
	if pos.Leverage <= 0 {
		return 0
	}
	margin := 1 / pos.Leverage
	if pos.Size >= 0 {
		return price * (1 - margin)
	}
	return price * (1 + margin)
}

func (m *Mock) failNext() error {
	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		return fmt.Errorf("mock venue unavailable")
	}
	return nil
}

// --- MarketDataProvider ---

func (m *Mock) GetMarketData(_ context.Context, symbol string) (MarketData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failNext(); err != nil {
		return MarketData{}, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return MarketData{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	spread := p * 0.0002
	return MarketData{
		Symbol: symbol,
		Price:  p,
		Volume: 1000 + rand.Float64()*500,
		Bid:    p - spread/2,
		Ask:    p + spread/2,
	}, nil
}

func (m *Mock) GetHistoricalData(_ context.Context, symbol, _ string, start, end time.Time) ([]OHLCV, error) {
	m.mu.RLock()
	p := m.prices[symbol]
	m.mu.RUnlock()
	if p == 0 {
		p = 100
	}

	n := int(end.Sub(start) / time.Hour)
	if n <= 0 {
		n = 200
	}
	bars := make([]OHLCV, 0, n)
	ts := start
	for i := 0; i < n; i++ {
		open := p
		p *= 1 + (rand.Float64()*2-1)*0.005
		high := maxf(open, p) * (1 + rand.Float64()*0.002)
		low := minf(open, p) * (1 - rand.Float64()*0.002)
		bars = append(bars, OHLCV{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  p,
			Volume: 800 + rand.Float64()*600,
		})
		ts = ts.Add(time.Hour)
	}
	return bars, nil
}

// --- AccountProvider ---

func (m *Mock) GetAccount(_ context.Context) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failNext(); err != nil {
		return Account{}, err
	}
	return m.accountLocked(), nil
}

func (m *Mock) accountLocked() Account {
	var used float64
	for _, pos := range m.positions {
		used += abs(pos.Size) * pos.EntryPrice / maxf(pos.Leverage, 1)
	}
	return Account{
		Equity:         m.equity,
		FreeCollateral: maxf(m.equity-used, 0),
		Leverage:       1,
	}
}

func (m *Mock) SubscribeAccountUpdates(cb func(Account)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.accountSubs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.accountSubs, id)
	}
}

func (m *Mock) GetOpenPositions(_ context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

// --- OrderExecutionProvider ---

func (m *Mock) PlaceOrder(_ context.Context, params OrderParams) (OrderRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return OrderRef{}, err
	}

	id := uuid.NewString()
	ref := OrderRef{
		ID:        id,
		Market:    params.Market,
		Side:      params.Side,
		Price:     params.Price,
		Size:      params.Size,
		CreatedAt: time.Now(),
	}

	if params.Type == Market {
		price := m.prices[params.Market]
		pnl := m.applyFillLocked(params, price)
		ref.Price = price
		fill := Fill{OrderID: id, Market: params.Market, Side: params.Side, Price: price, Size: params.Size, PnL: pnl}
		for _, cb := range m.fillSubs {
			go cb(fill)
		}
		return ref, nil
	}

	m.open[id] = params
	return ref, nil
}

func (m *Mock) CancelOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[id]; !ok {
		return fmt.Errorf("order %s not found", id)
	}
	delete(m.open, id)
	return nil
}

func (m *Mock) SetLeverage(_ context.Context, market string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[market]; ok {
		pos.Leverage = value
		pos.LiquidationPrice = liquidationFor(pos, m.prices[market])
		m.positions[market] = pos
	}
	return nil
}

// SubscribeFills implements FillListener.
func (m *Mock) SubscribeFills(cb func(Fill)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.fillSubs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.fillSubs, id)
	}
}

// SetPrice pins a symbol price; used by tests to force crossings.
func (m *Mock) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
	m.tickOnce()
}

// tickOnce runs one matching pass without moving prices.
func (m *Mock) tickOnce() {
	m.mu.Lock()
	var fills []Fill
	for id, o := range m.open {
		p := m.prices[o.Market]
		crossed := (o.Side == Buy && p <= o.Price) || (o.Side == Sell && p >= o.Price)
		if crossed {
			delete(m.open, id)
			pnl := m.applyFillLocked(o, o.Price)
			fills = append(fills, Fill{OrderID: id, Market: o.Market, Side: o.Side, Price: o.Price, Size: o.Size, PnL: pnl})
		}
	}
	fillSubs := snapshot(m.fillSubs)
	m.mu.Unlock()
	for _, f := range fills {
		for _, cb := range fillSubs {
			cb(f)
		}
	}
}

// OpenOrderCount reports resting orders; test helper.
func (m *Mock) OpenOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}
