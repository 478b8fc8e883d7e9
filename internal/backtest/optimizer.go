package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"growth-core/internal/exchange"
	"growth-core/internal/strategy"
)

// Fitness scores a backtest result; higher is better.
type Fitness func(*Result) float64

// SharpeFitness is the default optimization target.
func SharpeFitness(r *Result) float64 { return r.SharpeRatio }

// Bound constrains one parameter during the search.
type Bound struct {
	Min, Max float64
}

// OptimizerConfig tunes the genetic search.
type OptimizerConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64 // probability a child mutates
	TournamentSize int
	Bounds         map[string]Bound // market-aware bounds, e.g. leverage/spacing
	Seed           int64
}

func (c *OptimizerConfig) applyDefaults() {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 20
	}
	if c.Generations <= 0 {
		c.Generations = 10
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.2
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = 3
	}
}

// Optimizer runs a genetic parameter search against historical bars.
type Optimizer struct {
	engine  *Engine
	cfg     OptimizerConfig
	fitness Fitness
	log     *zap.Logger
	rng     *rand.Rand
}

// NewOptimizer builds an optimizer around a backtest engine. A nil fitness
// defaults to Sharpe.
func NewOptimizer(engine *Engine, cfg OptimizerConfig, fitness Fitness, log *zap.Logger) *Optimizer {
	cfg.applyDefaults()
	if fitness == nil {
		fitness = SharpeFitness
	}
	if log == nil {
		log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Optimizer{
		engine:  engine,
		cfg:     cfg,
		fitness: fitness,
		log:     log.Named("optimizer"),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Builder constructs a fresh strategy instance from a parameter set. Each
// evaluation gets its own instance so runs cannot share mutable state.
type Builder func(params map[string]float64) (strategy.Strategy, error)

type candidate struct {
	params  map[string]float64
	fitness float64
	result  *Result
}

// Optimize searches around base: a population of ±30% perturbations evolves
// over generations with elite preservation, tournament selection, per-field
// crossover and single-field mutation. Returns the best parameter set, its
// backtest result, and the achieved fitness.
func (o *Optimizer) Optimize(ctx context.Context, base map[string]float64, build Builder, bars []exchange.OHLCV) (map[string]float64, *Result, float64, error) {
	keys := sortedKeys(base)
	if len(keys) == 0 {
		return nil, nil, 0, fmt.Errorf("optimize: empty parameter set")
	}

	pop := make([]candidate, 0, o.cfg.PopulationSize)
	pop = append(pop, candidate{params: cloneParams(base)})
	for len(pop) < o.cfg.PopulationSize {
		pop = append(pop, candidate{params: o.perturbAll(base, keys)})
	}

	if err := o.evaluate(ctx, pop, build, bars); err != nil {
		return nil, nil, 0, err
	}
	best := fittest(pop)

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}

		next := make([]candidate, 0, o.cfg.PopulationSize)
		// Elite preservation: the best config always survives unchanged.
		next = append(next, candidate{params: cloneParams(best.params)})

		for len(next) < o.cfg.PopulationSize {
			a := o.tournament(pop)
			b := o.tournament(pop)
			child := o.crossover(a.params, b.params, keys)
			if o.rng.Float64() < o.cfg.MutationRate {
				o.mutate(child, keys)
			}
			next = append(next, candidate{params: child})
		}

		if err := o.evaluate(ctx, next, build, bars); err != nil {
			return nil, nil, 0, err
		}
		pop = next
		if c := fittest(pop); c.fitness > best.fitness {
			best = c
		}
		o.log.Debug("generation complete",
			zap.Int("generation", gen+1),
			zap.Float64("best_fitness", best.fitness))
	}

	o.log.Info("optimization finished",
		zap.Int("generations", o.cfg.Generations),
		zap.Int("population", o.cfg.PopulationSize),
		zap.Float64("fitness", best.fitness))
	return best.params, best.result, best.fitness, nil
}

func (o *Optimizer) evaluate(ctx context.Context, pop []candidate, build Builder, bars []exchange.OHLCV) error {
	for i := range pop {
		s, err := build(pop[i].params)
		if err != nil {
			// Invalid parameter combination: worst possible fitness.
			pop[i].fitness = -1e9
			continue
		}
		res, err := o.engine.Run(ctx, s, bars)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pop[i].fitness = -1e9
			continue
		}
		pop[i].result = res
		pop[i].fitness = o.fitness(res)
	}
	return nil
}

// tournament picks the fittest of TournamentSize random candidates.
func (o *Optimizer) tournament(pop []candidate) candidate {
	best := pop[o.rng.Intn(len(pop))]
	for i := 1; i < o.cfg.TournamentSize; i++ {
		c := pop[o.rng.Intn(len(pop))]
		if c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

// crossover takes each field from a single randomly chosen parent.
func (o *Optimizer) crossover(a, b map[string]float64, keys []string) map[string]float64 {
	child := make(map[string]float64, len(keys))
	for _, k := range keys {
		if o.rng.Float64() < 0.5 {
			child[k] = a[k]
		} else {
			child[k] = b[k]
		}
	}
	return child
}

// mutate perturbs one randomly chosen field by ±30%.
func (o *Optimizer) mutate(params map[string]float64, keys []string) {
	k := keys[o.rng.Intn(len(keys))]
	params[k] = o.clamp(k, params[k]*(1+(o.rng.Float64()*2-1)*0.3))
}

// perturbAll jitters every scalar field by ±30%, respecting bounds.
func (o *Optimizer) perturbAll(base map[string]float64, keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		out[k] = o.clamp(k, base[k]*(1+(o.rng.Float64()*2-1)*0.3))
	}
	return out
}

func (o *Optimizer) clamp(key string, v float64) float64 {
	if b, ok := o.cfg.Bounds[key]; ok {
		if v < b.Min {
			v = b.Min
		}
		if b.Max > 0 && v > b.Max {
			v = b.Max
		}
	}
	return v
}

func fittest(pop []candidate) candidate {
	best := pop[0]
	for _, c := range pop[1:] {
		if c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

func cloneParams(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func sortedKeys(p map[string]float64) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
