package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/api"
	"growth-core/internal/backtest"
	"growth-core/internal/events"
	"growth-core/internal/exchange"
	"growth-core/internal/orchestrator"
	"growth-core/internal/performance"
	"growth-core/internal/risk"
	"growth-core/internal/strategy"
	"growth-core/pkg/config"
	"growth-core/pkg/logger"
	"growth-core/pkg/ratelimit"
	"growth-core/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("controller failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	limiter := ratelimit.New(cfg.RateLimitMax, time.Duration(cfg.RateLimitWindowSecs*float64(time.Second)))

	phases, err := loadPhases(cfg, log)
	if err != nil {
		return err
	}

	// The venue is always the paper exchange; in live mode its prices are
	// driven by the real feed instead of the internal random walk.
	startPrices := make(map[string]float64, len(cfg.Markets))
	for _, m := range cfg.Markets {
		startPrices[m] = 100
	}
	venue := exchange.NewMock(cfg.InitialCapital, startPrices)

	var market exchange.MarketDataProvider = venue
	if !cfg.UseMockFeed && cfg.RestURL != "" {
		market = exchange.NewPaperMarket(venue, exchange.NewHistoryClient(cfg.RestURL))
	}

	account := exchange.NewLimitedAccount(venue, limiter)
	exec := exchange.NewLimitedExecutor(venue, limiter)

	factory := strategy.NewFactory(strategy.Deps{Market: market, Exec: exec, Log: log})
	assessor := risk.NewAssessor(risk.AssessorConfig{
		MaxPositionSize:  cfg.MaxPositionSize,
		VolatilityLimit:  cfg.VolatilityLimit,
		StopLossPct:      cfg.StopLossPct,
		KellyWinRate:     cfg.KellyWinRate,
		KellyPayoffRatio: cfg.KellyPayoffRatio,
	}, nil, log)
	portfolio := risk.NewPortfolio(risk.PortfolioConfig{
		MaxDrawdownBudget: cfg.MaxDrawdown,
		LiquidationBuffer: cfg.LiquidationBuffer,
		MaxPositionSize:   cfg.MaxPositionSize,
	}, account, exec, log)
	tracker := performance.NewTracker(performance.Config{
		InitialCapital: cfg.InitialCapital,
		Milestones:     cfg.Milestones,
		Horizon:        time.Duration(cfg.HorizonDays) * 24 * time.Hour,
		RiskFreeDaily:  cfg.RiskFreeDailyRate,
	}, log)
	engine := backtest.NewEngine(backtest.Config{
		InitialCapital: cfg.InitialCapital,
		FeeRate:        cfg.BacktestFeeRate,
		Slippage:       cfg.BacktestSlippage,
		RiskFreeDaily:  cfg.RiskFreeDailyRate,
	}, log)

	var recorder orchestrator.Recorder
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Warn("persistence disabled", zap.Error(err))
	} else {
		recorder = db
		defer func() { _ = db.Close() }()
	}

	bus := events.NewBus()
	stopAudit := events.Audit(bus, log)
	defer stopAudit()

	orch, err := orchestrator.New(orchestrator.Config{
		Markets:             cfg.Markets,
		Phases:              phases,
		InitialCapital:      cfg.InitialCapital,
		EmergencyStopLoss:   cfg.EmergencyStopLoss,
		EquitySnapshotEvery: time.Duration(cfg.EquitySnapshotSecs) * time.Second,
	}, orchestrator.Deps{
		Market:    market,
		Account:   account,
		Exec:      exec,
		Fills:     venue,
		Factory:   factory,
		Assessor:  assessor,
		Portfolio: portfolio,
		Tracker:   tracker,
		Limiter:   limiter,
		Recorder:  recorder,
		Bus:       bus,
		Backtest:  engine,
		Log:       log,
	})
	if err != nil {
		return err
	}

	if err := orch.Initialize(ctx); err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}

	if cfg.UseMockFeed || cfg.FeedURL == "" {
		go venue.Run(ctx)
	}
	go feedTicks(ctx, cfg, venue, orch, log)

	srv := api.NewServer(orch, cfg.JWTSecret, log)
	go func() {
		if err := srv.Run(":" + cfg.Port); err != nil {
			log.Error("api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return orch.Stop(shutdownCtx)
}

// feedTicks drives the controller. In mock mode it polls the paper venue's
// random walk; in live mode it consumes the websocket feed and mirrors each
// tick into the venue so paper fills track the real market.
func feedTicks(ctx context.Context, cfg *config.Config, venue *exchange.Mock, orch *orchestrator.Orchestrator, log *zap.Logger) {
	if cfg.UseMockFeed || cfg.FeedURL == "" {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, m := range cfg.Markets {
					md, err := venue.GetMarketData(ctx, m)
					if err != nil {
						continue
					}
					_ = orch.OnTick(ctx, md)
				}
			}
		}
	}

	stream := exchange.NewStreamClient(cfg.FeedURL, log)
	ticks, stopFeed, err := stream.SubscribeTicks(ctx, cfg.Markets)
	if err != nil {
		log.Error("tick feed unavailable", zap.Error(err))
		return
	}
	defer stopFeed()

	for {
		select {
		case <-ctx.Done():
			return
		case md, ok := <-ticks:
			if !ok {
				log.Warn("tick feed closed")
				return
			}
			venue.SetPrice(md.Symbol, md.Price)
			_ = orch.OnTick(ctx, md)
		}
	}
}

func loadPhases(cfg *config.Config, log *zap.Logger) ([]config.PhaseSpec, error) {
	if cfg.PhaseConfigPath == "" {
		return config.DefaultPhases(), nil
	}
	if _, err := os.Stat(cfg.PhaseConfigPath); err != nil {
		log.Warn("phase config missing, using defaults", zap.String("path", cfg.PhaseConfigPath))
		return config.DefaultPhases(), nil
	}
	return config.LoadPhases(cfg.PhaseConfigPath)
}
