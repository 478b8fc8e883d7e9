// Package orchestrator runs the control loop: it picks the strategy mix for
// the current capital phase, routes market data to the engines, gates every
// trade through risk, and halts everything when the emergency conditions
// fire.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"growth-core/internal/backtest"
	"growth-core/internal/errs"
	"growth-core/internal/events"
	"growth-core/internal/exchange"
	"growth-core/internal/performance"
	"growth-core/internal/risk"
	"growth-core/internal/strategy"
	"growth-core/pkg/config"
	"growth-core/pkg/ratelimit"
	"growth-core/pkg/store"
)

// State is the controller lifecycle phase.
type State string

const (
	StateIdle             State = "idle"
	StateInitializing     State = "initializing"
	StateRunning          State = "running"
	StateStopped          State = "stopped"
	StateEmergencyStopped State = "emergency_stopped"
)

const (
	accountRetries = 3
	retryDelay     = time.Second
)

// Recorder persists run artifacts. All calls are best-effort; a nil Recorder
// disables persistence entirely.
type Recorder interface {
	RecordFill(ctx context.Context, f store.FillRecord) error
	RecordEquity(ctx context.Context, equity float64, at time.Time) error
	SaveBacktest(ctx context.Context, name string, payload []byte) error
	LoadBacktest(ctx context.Context, name string) ([]byte, error)
}

// healthChecker is implemented by engines with periodic maintenance work.
type healthChecker interface {
	HealthCheck(ctx context.Context)
}

// Config tunes the control loop.
type Config struct {
	Markets           []string
	Phases            []config.PhaseSpec
	InitialCapital    float64
	EmergencyStopLoss float64 // drawdown fraction that triggers the halt

	AccountTimeout      time.Duration
	HealthCheckInterval time.Duration
	MarkCheckInterval   time.Duration
	EquitySnapshotEvery time.Duration
	RecentPriceWindow   int
}

func (c *Config) applyDefaults() {
	if c.AccountTimeout <= 0 {
		c.AccountTimeout = 5 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	if c.MarkCheckInterval <= 0 {
		c.MarkCheckInterval = 10 * time.Second
	}
	if c.EquitySnapshotEvery <= 0 {
		c.EquitySnapshotEvery = time.Minute
	}
	if c.RecentPriceWindow <= 0 {
		c.RecentPriceWindow = 120
	}
	if c.EmergencyStopLoss <= 0 {
		c.EmergencyStopLoss = 0.15
	}
	if len(c.Phases) == 0 {
		c.Phases = config.DefaultPhases()
	}
}

// Deps bundles the controller's collaborators. Fills, Recorder and Bus are
// optional.
type Deps struct {
	Market    exchange.MarketDataProvider
	Account   exchange.AccountProvider
	Exec      exchange.OrderExecutionProvider
	Fills     exchange.FillListener
	Factory   *strategy.Factory
	Assessor  *risk.Assessor
	Portfolio *risk.Portfolio
	Tracker   *performance.Tracker
	Limiter   *ratelimit.Limiter
	Recorder  Recorder
	Bus       *events.Bus
	Backtest  *backtest.Engine
	Log       *zap.Logger
}

// Orchestrator is the top-level controller for one funded account.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu            sync.Mutex
	state         State
	phase         config.PhaseSpec
	strategies    map[string]strategy.Strategy // keyed by market
	prices        map[string][]float64
	lastMarkCheck map[string]time.Time
	lastSnapshot  time.Time
	balance       float64
	unsubs        []func()
	healthStop    chan struct{}
	reports       map[string]*backtest.Result

	errors        errorRing
	emergencyOnce sync.Once
	bg            sync.WaitGroup
}

// New validates the configuration and builds an idle controller.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.applyDefaults()
	if len(cfg.Markets) == 0 {
		return nil, errs.Configf("markets", "at least one market is required")
	}
	if cfg.InitialCapital <= 0 {
		return nil, errs.Configf("initial_capital", "must be positive, got %v", cfg.InitialCapital)
	}
	if err := ValidatePhases(cfg.Phases); err != nil {
		return nil, err
	}
	if deps.Market == nil || deps.Account == nil || deps.Exec == nil {
		return nil, errs.Configf("providers", "market, account and execution providers are required")
	}
	if deps.Factory == nil || deps.Assessor == nil || deps.Tracker == nil {
		return nil, errs.Configf("services", "factory, assessor and tracker are required")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	return &Orchestrator{
		cfg:           cfg,
		deps:          deps,
		log:           deps.Log.Named("orchestrator"),
		state:         StateIdle,
		strategies:    make(map[string]strategy.Strategy),
		prices:        make(map[string][]float64),
		lastMarkCheck: make(map[string]time.Time),
		reports:       make(map[string]*backtest.Result),
	}, nil
}

// Initialize verifies exchange connectivity and wires the account and fill
// callbacks. Transient fetch failures are retried a fixed number of times
// before the whole call fails.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateEmergencyStopped {
		o.mu.Unlock()
		return errs.ErrEmergencyStopped
	}
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("initialize from state %s", o.state)
	}
	o.state = StateInitializing
	o.mu.Unlock()

	var acct exchange.Account
	err := errs.Retry(accountRetries, retryDelay, func() error {
		var ferr error
		acct, ferr = exchange.GetAccountWithTimeout(ctx, o.deps.Account, o.cfg.AccountTimeout)
		return ferr
	})
	if err != nil {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
		return errs.Connectivity("account fetch", err)
	}

	o.mu.Lock()
	o.balance = acct.Equity
	o.unsubs = append(o.unsubs, o.deps.Account.SubscribeAccountUpdates(o.onAccountUpdate))
	if o.deps.Fills != nil {
		o.unsubs = append(o.unsubs, o.deps.Fills.SubscribeFills(o.onFill))
	}
	o.mu.Unlock()

	o.log.Info("controller initialized", zap.Float64("equity", acct.Equity))
	return nil
}

// Start determines the capital phase from the current balance, builds its
// strategy mix and begins trading. Individual strategy failures are logged
// and skipped; Start only fails when nothing could be started.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateEmergencyStopped {
		return errs.ErrEmergencyStopped
	}
	if o.state != StateInitializing {
		return fmt.Errorf("start from state %s", o.state)
	}

	phase, err := DeterminePhase(o.cfg.Phases, o.balance)
	if err != nil {
		return err
	}
	if err := o.startPhaseLocked(ctx, phase); err != nil {
		return err
	}

	o.healthStop = make(chan struct{})
	o.bg.Add(1)
	go o.healthLoop(o.healthStop)

	o.state = StateRunning
	o.log.Info("controller running",
		zap.String("phase", phase.Name),
		zap.Float64("balance", o.balance))
	return nil
}

// startPhaseLocked instantiates one strategy per market from the phase spec.
// A phase with several weighted specs gets a combined composite per market.
func (o *Orchestrator) startPhaseLocked(ctx context.Context, phase config.PhaseSpec) error {
	if len(phase.Strategies) == 0 {
		return errs.Configf("phase.strategies", "phase %q has no strategies", phase.Name)
	}

	started := 0
	for _, market := range o.cfg.Markets {
		s, err := o.buildForMarket(ctx, phase, market)
		if err != nil {
			o.errors.add("strategy init "+market, err)
			o.log.Error("strategy init failed, skipping market",
				zap.String("market", market), zap.Error(err))
			continue
		}
		o.strategies[market] = s
		started++
	}
	if started == 0 {
		return fmt.Errorf("phase %s: no strategy could be started", phase.Name)
	}

	o.phase = phase
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.EventPhaseChange, phase.Name)
	}
	return nil
}

func (o *Orchestrator) buildForMarket(ctx context.Context, phase config.PhaseSpec, market string) (strategy.Strategy, error) {
	if len(phase.Strategies) == 1 {
		spec := phase.Strategies[0]
		name := fmt.Sprintf("%s-%s-%s", phase.Name, spec.Type, market)
		params, err := o.resolveParams(phase, spec)
		if err != nil {
			return nil, err
		}
		return o.deps.Factory.Create(ctx, spec.Type, name, market, params)
	}

	subs := make([]strategy.Strategy, 0, len(phase.Strategies))
	weights := make([]float64, 0, len(phase.Strategies))
	for _, spec := range phase.Strategies {
		name := fmt.Sprintf("%s-%s-%s", phase.Name, spec.Type, market)
		params, err := o.resolveParams(phase, spec)
		var s strategy.Strategy
		if err == nil {
			s, err = o.deps.Factory.Create(ctx, spec.Type, name, market, params)
		}
		if err != nil {
			for _, built := range subs {
				_ = built.Stop(ctx)
			}
			return nil, err
		}
		subs = append(subs, s)
		weights = append(weights, spec.Weight)
	}
	return o.deps.Factory.Combine(phase.Name+"-combined-"+market, subs, weights)
}

// resolveParams turns phase-relative parameters into absolute ones: the grid
// investment fraction becomes capital split across markets, and the phase
// leverage fills in when the strategy does not set its own. An absolute
// investment larger than the current balance is rejected.
func (o *Orchestrator) resolveParams(phase config.PhaseSpec, spec config.StrategySpec) (map[string]float64, error) {
	params := make(map[string]float64, len(spec.Parameters)+1)
	for k, v := range spec.Parameters {
		params[k] = v
	}
	if inv, ok := params["investment"]; ok {
		if inv <= 1 {
			params["investment"] = inv * o.balance * spec.Weight / float64(len(o.cfg.Markets))
		} else if inv > o.balance {
			return nil, &errs.InsufficientBalanceError{Required: inv, Available: o.balance}
		}
	}
	if _, ok := params["leverage"]; !ok && phase.Leverage > 0 {
		params["leverage"] = phase.Leverage
	}
	return params, nil
}

// OnTick routes one market data update through the strategy for its market
// and gates any resulting signal through risk. Portfolio mark checks are
// throttled per market so they do not saturate the rate limiter.
func (o *Orchestrator) OnTick(ctx context.Context, tick exchange.MarketData) error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	s := o.strategies[tick.Symbol]
	o.recordPriceLocked(tick.Symbol, tick.Price)
	checkMark := false
	if now := time.Now(); now.Sub(o.lastMarkCheck[tick.Symbol]) >= o.cfg.MarkCheckInterval {
		o.lastMarkCheck[tick.Symbol] = now
		checkMark = true
	}
	o.mu.Unlock()

	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.EventPriceTick, events.Tick{
			Symbol: tick.Symbol, Price: tick.Price, Volume: tick.Volume,
			Bid: tick.Bid, Ask: tick.Ask,
		})
	}

	if s != nil {
		sig, err := s.OnTick(ctx, tick)
		if err != nil {
			o.errors.add("tick "+tick.Symbol, err)
			o.log.Warn("strategy tick failed", zap.String("market", tick.Symbol), zap.Error(err))
		} else if sig != nil {
			o.handleSignal(ctx, sig)
		}
	}

	if checkMark && o.deps.Portfolio != nil {
		if err := o.deps.Portfolio.OnMarkPrice(ctx, tick.Symbol, tick.Price); err != nil {
			o.errors.add("mark check "+tick.Symbol, err)
			o.log.Warn("portfolio mark check failed", zap.String("market", tick.Symbol), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) recordPriceLocked(symbol string, price float64) {
	w := append(o.prices[symbol], price)
	if len(w) > o.cfg.RecentPriceWindow {
		w = w[1:]
	}
	o.prices[symbol] = w
}

// handleSignal runs the risk gate and places a market order for accepted
// proposals. Rejections are final for this signal; nothing is queued.
func (o *Orchestrator) handleSignal(ctx context.Context, sig *strategy.Signal) {
	o.mu.Lock()
	recent := append([]float64(nil), o.prices[sig.Symbol]...)
	equity := o.balance
	o.mu.Unlock()

	verdict := o.deps.Assessor.Assess(risk.Proposal{
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		Price:        sig.Price,
		Equity:       equity,
		Confidence:   sig.Confidence,
		RecentPrices: recent,
	})
	if !verdict.Acceptable {
		return
	}

	side := exchange.Buy
	if sig.Direction == strategy.Short {
		side = exchange.Sell
	}
	ref, err := o.deps.Exec.PlaceOrder(ctx, exchange.OrderParams{
		Market:   sig.Symbol,
		Side:     side,
		Type:     exchange.Market,
		Size:     verdict.PositionSize,
		StopLoss: verdict.StopLoss,
	})
	if err != nil {
		o.errors.add("order "+sig.Symbol, err)
		o.log.Error("signal order failed",
			zap.String("market", sig.Symbol),
			zap.String("strategy", sig.Strategy),
			zap.Error(err))
		return
	}
	o.log.Info("signal order placed",
		zap.String("order", ref.ID),
		zap.String("market", sig.Symbol),
		zap.String("strategy", sig.Strategy),
		zap.String("direction", string(sig.Direction)),
		zap.Float64("size", verdict.PositionSize),
		zap.Float64("risk_score", verdict.RiskScore))
}

// onAccountUpdate folds new equity into performance, persists a snapshot,
// re-evaluates the capital phase and checks the emergency conditions. Fires
// from the exchange goroutine.
func (o *Orchestrator) onAccountUpdate(acct exchange.Account) {
	now := time.Now()
	o.mu.Lock()
	o.balance = acct.Equity
	running := o.state == StateRunning
	currentPhase := o.phase.Name
	snapshotDue := now.Sub(o.lastSnapshot) >= o.cfg.EquitySnapshotEvery
	if snapshotDue {
		o.lastSnapshot = now
	}
	o.mu.Unlock()

	o.deps.Tracker.OnAccountUpdate(acct.Equity)

	if snapshotDue && o.deps.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.deps.Recorder.RecordEquity(ctx, acct.Equity, now); err != nil {
			o.errors.add("equity snapshot", err)
		}
		cancel()
	}
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.EventAccountUpdate, events.AccountUpdate{
			Equity:         acct.Equity,
			FreeCollateral: acct.FreeCollateral,
			Leverage:       acct.Leverage,
		})
	}

	if !running {
		return
	}

	if reason, halt := o.emergencyReason(acct.Equity); halt {
		o.EmergencyStop(context.Background(), reason)
		return
	}

	phase, err := DeterminePhase(o.cfg.Phases, acct.Equity)
	if err != nil {
		o.errors.add("phase lookup", err)
		return
	}
	if phase.Name != currentPhase {
		o.transitionPhase(phase)
	}
}

// emergencyReason checks the halt conditions in a fixed order: drawdown over
// the configured threshold, equity under 75% of initial capital, then a
// deeply negative Sharpe ratio.
func (o *Orchestrator) emergencyReason(equity float64) (string, bool) {
	snap := o.deps.Tracker.Snapshot()
	if snap.Drawdown > o.cfg.EmergencyStopLoss {
		return fmt.Sprintf("drawdown %.3f over threshold %.3f", snap.Drawdown, o.cfg.EmergencyStopLoss), true
	}
	if equity < 0.75*o.cfg.InitialCapital {
		return fmt.Sprintf("equity %.2f under 75%% of initial capital %.2f", equity, o.cfg.InitialCapital), true
	}
	if snap.SharpeRatio < -2 {
		return fmt.Sprintf("sharpe ratio %.2f under -2", snap.SharpeRatio), true
	}
	return "", false
}

// transitionPhase tears down the current strategy mix and rebuilds it for the
// new phase. The teardown and rebuild happen exactly once per crossing; the
// caller already verified the phase name changed.
func (o *Orchestrator) transitionPhase(phase config.PhaseSpec) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning || o.phase.Name == phase.Name {
		return
	}

	o.log.Info("capital phase change",
		zap.String("from", o.phase.Name),
		zap.String("to", phase.Name),
		zap.Float64("balance", o.balance))

	o.stopStrategiesLocked(ctx)
	if err := o.startPhaseLocked(ctx, phase); err != nil {
		o.errors.add("phase transition", err)
		o.log.Error("phase transition failed", zap.String("phase", phase.Name), zap.Error(err))
	}
}

// onFill forwards venue fills to the fill-aware engines and folds realized
// PnL into the performance counters.
func (o *Orchestrator) onFill(fill exchange.Fill) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.mu.Lock()
	s := o.strategies[fill.Market]
	o.mu.Unlock()

	if fh, ok := s.(strategy.FillHandler); ok {
		if err := fh.OnFill(ctx, fill); err != nil {
			o.errors.add("fill "+fill.Market, err)
			o.log.Warn("fill handling failed", zap.String("market", fill.Market), zap.Error(err))
		}
	}
	if fill.PnL != 0 {
		o.deps.Tracker.OnTrade(fill.PnL)
	}

	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.RecordFill(ctx, store.FillRecord{
			OrderID: fill.OrderID,
			Market:  fill.Market,
			Side:    string(fill.Side),
			Price:   fill.Price,
			Size:    fill.Size,
			PnL:     fill.PnL,
			At:      time.Now(),
		}); err != nil {
			o.errors.add("fill record", err)
		}
	}
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.EventOrderFilled, events.Fill{
			OrderID: fill.OrderID, Symbol: fill.Market, Side: string(fill.Side),
			Price: fill.Price, Size: fill.Size, PnL: fill.PnL,
		})
	}
}

// healthLoop runs periodic strategy maintenance and portfolio rebalancing
// until Stop or EmergencyStop closes the channel.
func (o *Orchestrator) healthLoop(stop <-chan struct{}) {
	defer o.bg.Done()
	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.runHealthChecks()
		}
	}
}

func (o *Orchestrator) runHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o.mu.Lock()
	snapshot := make([]strategy.Strategy, 0, len(o.strategies))
	for _, s := range o.strategies {
		snapshot = append(snapshot, s)
	}
	o.mu.Unlock()

	for _, s := range snapshot {
		o.healthCheck(ctx, s)
	}

	if o.deps.Portfolio != nil {
		if err := o.deps.Portfolio.Rebalance(ctx); err != nil {
			o.errors.add("rebalance", err)
			o.log.Warn("portfolio rebalance failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) healthCheck(ctx context.Context, s strategy.Strategy) {
	if hc, ok := s.(healthChecker); ok {
		hc.HealthCheck(ctx)
	}
	if combined, ok := s.(*strategy.CombinedStrategy); ok {
		for _, sub := range combined.Subs() {
			if hc, ok := sub.(healthChecker); ok {
				hc.HealthCheck(ctx)
			}
		}
	}
}

// EmergencyStop halts trading, stops every strategy and flattens open
// positions. It runs at most once per controller lifetime; later calls are
// no-ops.
func (o *Orchestrator) EmergencyStop(ctx context.Context, reason string) {
	o.emergencyOnce.Do(func() {
		o.log.Error("emergency stop", zap.String("reason", reason))
		o.errors.add("emergency stop", fmt.Errorf("%s", reason))

		o.mu.Lock()
		o.state = StateEmergencyStopped
		if o.healthStop != nil {
			close(o.healthStop)
			o.healthStop = nil
		}
		o.stopStrategiesLocked(ctx)
		unsubs := o.unsubs
		o.unsubs = nil
		o.mu.Unlock()

		o.closeAllPositions(ctx)

		for _, u := range unsubs {
			u()
		}
		if o.deps.Bus != nil {
			o.deps.Bus.Publish(events.EventEmergencyStop, reason)
		}
		o.bg.Wait()
	})
}

// closeAllPositions flattens every open position with reduce-only market
// orders, retrying each a fixed number of times.
func (o *Orchestrator) closeAllPositions(ctx context.Context) {
	positions, err := o.deps.Account.GetOpenPositions(ctx)
	if err != nil {
		o.errors.add("emergency positions fetch", err)
		o.log.Error("cannot fetch positions for emergency close", zap.Error(err))
		return
	}

	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		side := exchange.Sell
		size := pos.Size
		if pos.Size < 0 {
			side = exchange.Buy
			size = -pos.Size
		}
		params := exchange.OrderParams{
			Market:     pos.Market,
			Side:       side,
			Type:       exchange.Market,
			Size:       size,
			ReduceOnly: true,
		}
		err := errs.Retry(accountRetries, retryDelay, func() error {
			_, perr := o.deps.Exec.PlaceOrder(ctx, params)
			return perr
		})
		if err != nil {
			o.errors.add("emergency close "+pos.Market, err)
			o.log.Error("emergency close failed",
				zap.String("market", pos.Market), zap.Error(err))
			continue
		}
		o.log.Info("position closed", zap.String("market", pos.Market), zap.Float64("size", size))
	}
}

// Stop halts trading gracefully: strategies cancel their resting orders and
// stop concurrently, then open positions are flattened with reduce-only
// market orders. Safe to call twice.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateStopped || o.state == StateEmergencyStopped {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopped
	if o.healthStop != nil {
		close(o.healthStop)
		o.healthStop = nil
	}
	o.stopStrategiesLocked(ctx)
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()

	o.closeAllPositions(ctx)

	for _, u := range unsubs {
		u()
	}
	o.bg.Wait()
	o.log.Info("controller stopped")
	return nil
}

// stopStrategiesLocked stops every active strategy concurrently and clears
// the registry.
func (o *Orchestrator) stopStrategiesLocked(ctx context.Context) {
	var wg sync.WaitGroup
	for market, s := range o.strategies {
		wg.Add(1)
		go func(market string, s strategy.Strategy) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				o.errors.add("stop "+market, err)
				o.log.Warn("strategy stop failed", zap.String("market", market), zap.Error(err))
			}
		}(market, s)
	}
	wg.Wait()
	o.strategies = make(map[string]strategy.Strategy)
}

// Status is the controller snapshot served over the API.
type Status struct {
	IsRunning        bool              `json:"is_running"`
	State            State             `json:"state"`
	CurrentPhase     string            `json:"current_phase"`
	ActiveMarkets    []string          `json:"active_markets"`
	CurrentBalance   float64           `json:"current_balance"`
	ActiveStrategies []string          `json:"active_strategies"`
	Performance      performance.State `json:"performance"`
	RateLimiter      *ratelimit.Status `json:"rate_limiter,omitempty"`
	RecentErrors     []ErrorRecord     `json:"recent_errors,omitempty"`
}

// GetStatus reports the controller state, active strategy mix and recent
// errors.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	st := Status{
		IsRunning:      o.state == StateRunning,
		State:          o.state,
		CurrentPhase:   o.phase.Name,
		CurrentBalance: o.balance,
	}
	for market, s := range o.strategies {
		st.ActiveMarkets = append(st.ActiveMarkets, market)
		st.ActiveStrategies = append(st.ActiveStrategies, s.Name())
	}
	o.mu.Unlock()

	st.Performance = o.deps.Tracker.Snapshot()
	if o.deps.Limiter != nil {
		ls := o.deps.Limiter.GetStatus()
		st.RateLimiter = &ls
	}
	st.RecentErrors = o.errors.snapshot()
	return st
}

// RunBacktest replays historical bars through a signal-only instance of the
// given strategy type and stores the report under the instance name.
func (o *Orchestrator) RunBacktest(ctx context.Context, typ, symbol string, params map[string]float64, start, end time.Time) (*backtest.Result, error) {
	if o.deps.Backtest == nil {
		return nil, errs.Configf("backtest", "no backtest engine configured")
	}

	bars, err := o.deps.Market.GetHistoricalData(ctx, symbol, "1h", start, end)
	if err != nil {
		return nil, errs.Connectivity("historical data", err)
	}

	name := typ + "-" + symbol
	s, err := o.deps.Factory.Detached().Create(ctx, typ, name, symbol, params)
	if err != nil {
		return nil, err
	}

	result, err := o.deps.Backtest.Run(ctx, s, bars)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.reports[result.Strategy] = result
	o.mu.Unlock()

	if o.deps.Recorder != nil {
		if payload, merr := json.Marshal(result); merr == nil {
			if serr := o.deps.Recorder.SaveBacktest(ctx, result.Strategy, payload); serr != nil {
				o.errors.add("backtest save", serr)
			}
		}
	}
	return result, nil
}

// GetBacktestReport returns a stored report by name, falling back to the
// recorder for reports from earlier runs.
func (o *Orchestrator) GetBacktestReport(ctx context.Context, name string) (*backtest.Result, error) {
	o.mu.Lock()
	r, ok := o.reports[name]
	o.mu.Unlock()
	if ok {
		return r, nil
	}

	if o.deps.Recorder != nil {
		payload, err := o.deps.Recorder.LoadBacktest(ctx, name)
		if err == nil {
			var result backtest.Result
			if uerr := json.Unmarshal(payload, &result); uerr == nil {
				return &result, nil
			}
		}
	}
	return nil, fmt.Errorf("no backtest report named %q", name)
}

// OptimizeStrategy searches the parameter space of a strategy type with the
// genetic optimizer over historical bars and returns the best candidate.
func (o *Orchestrator) OptimizeStrategy(ctx context.Context, typ, symbol string, base map[string]float64, optCfg backtest.OptimizerConfig, start, end time.Time) (map[string]float64, *backtest.Result, error) {
	if o.deps.Backtest == nil {
		return nil, nil, errs.Configf("backtest", "no backtest engine configured")
	}

	bars, err := o.deps.Market.GetHistoricalData(ctx, symbol, "1h", start, end)
	if err != nil {
		return nil, nil, errs.Connectivity("historical data", err)
	}

	detached := o.deps.Factory.Detached()
	build := func(params map[string]float64) (strategy.Strategy, error) {
		return detached.Create(ctx, typ, typ+"-opt-"+symbol, symbol, params)
	}

	opt := backtest.NewOptimizer(o.deps.Backtest, optCfg, backtest.SharpeFitness, o.log)
	best, result, fitness, err := opt.Optimize(ctx, base, build, bars)
	if err != nil {
		return nil, nil, err
	}
	o.log.Info("optimization finished",
		zap.String("strategy", typ),
		zap.String("symbol", symbol),
		zap.Float64("fitness", fitness))
	return best, result, nil
}

// ResearchReport aggregates live performance with the stored backtests.
type ResearchReport struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Phase       string                      `json:"phase"`
	Performance performance.State           `json:"performance"`
	Backtests   map[string]*backtest.Result `json:"backtests"`
}

// GetResearchReport summarizes the run for offline analysis.
func (o *Orchestrator) GetResearchReport() ResearchReport {
	o.mu.Lock()
	reports := make(map[string]*backtest.Result, len(o.reports))
	for k, v := range o.reports {
		reports[k] = v
	}
	phase := o.phase.Name
	o.mu.Unlock()

	return ResearchReport{
		GeneratedAt: time.Now(),
		Phase:       phase,
		Performance: o.deps.Tracker.Snapshot(),
		Backtests:   reports,
	}
}
