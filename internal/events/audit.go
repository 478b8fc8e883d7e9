package events

import (
	"sync"

	"go.uber.org/zap"
)

// Audit mirrors fills, phase changes and emergency stops from the bus into
// the structured log so every run leaves a readable trail. The returned stop
// function unsubscribes and waits for the drain goroutines to exit.
func Audit(bus *Bus, log *zap.Logger) func() {
	log = log.Named("audit")

	fills, unsubFills := bus.Subscribe(EventOrderFilled, 64)
	phases, unsubPhases := bus.Subscribe(EventPhaseChange, 8)
	halts, unsubHalts := bus.Subscribe(EventEmergencyStop, 1)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for p := range fills {
			f, ok := p.(Fill)
			if !ok {
				continue
			}
			log.Info("fill",
				zap.String("order", f.OrderID),
				zap.String("symbol", f.Symbol),
				zap.String("side", f.Side),
				zap.Float64("price", f.Price),
				zap.Float64("size", f.Size),
				zap.Float64("pnl", f.PnL))
		}
	}()
	go func() {
		defer wg.Done()
		for p := range phases {
			if name, ok := p.(string); ok {
				log.Info("phase change", zap.String("phase", name))
			}
		}
	}()
	go func() {
		defer wg.Done()
		for p := range halts {
			if reason, ok := p.(string); ok {
				log.Warn("emergency stop", zap.String("reason", reason))
			}
		}
	}()

	return func() {
		unsubFills()
		unsubPhases()
		unsubHalts()
		wg.Wait()
	}
}
