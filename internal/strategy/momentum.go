package strategy

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"growth-core/internal/exchange"
)

// MomentumConfig configures a momentum engine instance.
type MomentumConfig struct {
	Symbol            string
	Window            int     // number of (price, volume) samples kept
	MomentumThreshold float64 // e.g. 0.01 for 1% move across the window
	VolumeThreshold   float64 // latest volume vs. window average
}

// MomentumStrategy watches a rolling window of price/volume samples and
// signals when a move exceeds the momentum threshold on elevated volume.
type MomentumStrategy struct {
	name string
	cfg  MomentumConfig
	log  *zap.Logger

	mu      sync.Mutex
	status  Status
	prices  []float64
	volumes []float64
}

// NewMomentumStrategy builds a momentum engine.
func NewMomentumStrategy(name string, cfg MomentumConfig, log *zap.Logger) (*MomentumStrategy, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("momentum strategy requires a symbol")
	}
	if cfg.Window < 2 {
		return nil, fmt.Errorf("momentum window must be at least 2, got %d", cfg.Window)
	}
	if cfg.MomentumThreshold <= 0 || cfg.VolumeThreshold <= 0 {
		return nil, fmt.Errorf("momentum and volume thresholds must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MomentumStrategy{
		name:   name,
		cfg:    cfg,
		log:    log.Named("momentum").With(zap.String("symbol", cfg.Symbol)),
		status: StatusUninitialized,
	}, nil
}

func (m *MomentumStrategy) Name() string   { return m.name }
func (m *MomentumStrategy) Symbol() string { return m.cfg.Symbol }

func (m *MomentumStrategy) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MomentumStrategy) Initialize(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = m.prices[:0]
	m.volumes = m.volumes[:0]
	m.status = StatusRunning
	return nil
}

// OnTick appends the sample and evaluates the window once full.
// momentum = (newest - oldest) / oldest; volumeRatio = latest / avg(volumes).
func (m *MomentumStrategy) OnTick(_ context.Context, tick exchange.MarketData) (*Signal, error) {
	if tick.Symbol != m.cfg.Symbol || tick.Price <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusRunning {
		return nil, nil
	}

	m.prices = append(m.prices, tick.Price)
	m.volumes = append(m.volumes, tick.Volume)
	if len(m.prices) > m.cfg.Window {
		m.prices = m.prices[1:]
		m.volumes = m.volumes[1:]
	}
	if len(m.prices) < m.cfg.Window {
		return nil, nil
	}

	oldest := m.prices[0]
	newest := m.prices[len(m.prices)-1]
	if oldest <= 0 {
		return nil, nil
	}
	momentum := (newest - oldest) / oldest

	var sum float64
	for _, v := range m.volumes {
		sum += v
	}
	avg := sum / float64(len(m.volumes))
	if avg <= 0 {
		return nil, nil
	}
	volumeRatio := m.volumes[len(m.volumes)-1] / avg

	absMomentum := momentum
	if absMomentum < 0 {
		absMomentum = -absMomentum
	}
	if absMomentum <= m.cfg.MomentumThreshold || volumeRatio <= m.cfg.VolumeThreshold {
		return nil, nil
	}

	dir := Long
	if momentum < 0 {
		dir = Short
	}
	conf := absMomentum / m.cfg.MomentumThreshold
	if conf > 1 {
		conf = 1
	}
	return &Signal{
		Strategy:   m.name,
		Symbol:     m.cfg.Symbol,
		Direction:  dir,
		Confidence: conf,
		Price:      tick.Price,
		Note:       fmt.Sprintf("momentum %.4f, volume ratio %.2f", momentum, volumeRatio),
	}, nil
}

func (m *MomentumStrategy) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusStopped
	m.prices = nil
	m.volumes = nil
	return nil
}
