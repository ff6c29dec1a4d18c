package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"ensm/internal/games"
	"ensm/internal/norms"
	"ensm/internal/population"
)

var ErrRunFinished = errors.New("evolution already converged or timed out")

type Status string

const (
	StatusRunning   Status = "running"
	StatusConverged Status = "converged"
	StatusTimedOut  Status = "timed_out"
)

type MachineConfig struct {
	Network    *games.Network
	Space      *norms.Space
	Population *population.Population

	MaxGenerations          int
	StabilityMargin         float64
	MinNumStableGenerations int
	EvolveNorms             bool
	Aggregation             AggregateFunc
	// Workers bounds how many sub-populations are evaluated concurrently.
	Workers int
	Logger  *slog.Logger
}

type GenerationDiagnostics struct {
	Generation        int     `json:"generation"`
	MaxDelta          float64 `json:"max_delta"`
	StableGenerations int     `json:"stable_generations"`
	MeanFitness       float64 `json:"mean_fitness"`
	Degenerate        int     `json:"degenerate_simplices,omitempty"`
	Status            Status  `json:"status"`
}

type RunResult struct {
	Generations int                     `json:"generations"`
	Converged   bool                    `json:"converged"`
	TimedOut    bool                    `json:"timed_out"`
	Diagnostics []GenerationDiagnostics `json:"diagnostics"`
	Final       Snapshot                `json:"final"`
}

// Machine is the evolutionary norm synthesis machine. Each Evolve call runs
// one generation; the machine is running until it converges or times out.
// A generation that fails part way leaves the population half replicated,
// so the machine keeps returning that error afterwards.
// A Machine is not safe for concurrent use.
type Machine struct {
	cfg        MachineConfig
	logger     *slog.Logger
	strategies *StrategyReplicator
	norms      *NormReplicator
	aggregates *Aggregates

	generation int
	stable     int
	converged  bool
	timedOut   bool
	err        error
	last       GenerationDiagnostics
}

func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Network == nil {
		return nil, fmt.Errorf("games network is required")
	}
	if cfg.Space == nil {
		return nil, fmt.Errorf("norm space is required")
	}
	if cfg.Population == nil {
		return nil, fmt.Errorf("population is required")
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("max generations must be > 0")
	}
	if cfg.StabilityMargin < 0 || math.IsNaN(cfg.StabilityMargin) {
		return nil, fmt.Errorf("stability margin must be >= 0")
	}
	if cfg.MinNumStableGenerations <= 0 {
		return nil, fmt.Errorf("min number of stable generations must be > 0")
	}
	if cfg.Aggregation == nil {
		cfg.Aggregation = Min
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	for _, sp := range cfg.Population.SubPopulations() {
		if err := checkShape(sp, cfg.Space); err != nil {
			return nil, err
		}
	}

	strategies, err := NewStrategyReplicator(cfg.Network, cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	aggregates, err := NewAggregates(cfg.Network, cfg.Space)
	if err != nil {
		return nil, err
	}
	aggregates.Recompute(cfg.Population)

	return &Machine{
		cfg:        cfg,
		logger:     cfg.Logger,
		strategies: strategies,
		norms:      NewNormReplicator(),
		aggregates: aggregates,
		last:       GenerationDiagnostics{Status: StatusRunning},
	}, nil
}

func checkShape(sp *population.SubPopulation, space *norms.Space) error {
	states := sp.Contexts()
	if len(states) != space.Len() {
		return fmt.Errorf("sub-population %s: %d contexts, norm space has %d", sp.Name(), len(states), space.Len())
	}
	for ci, cs := range space.Contexts() {
		state := states[ci]
		if state.Context != cs.Context || len(state.Actions) != len(cs.Actions) || len(state.Norms) != len(cs.Norms) {
			return fmt.Errorf("sub-population %s: context %s does not match the norm space", sp.Name(), cs.Context)
		}
	}
	return nil
}

// Evolve runs one generation and returns the resulting action frequencies.
func (m *Machine) Evolve(ctx context.Context) (Snapshot, error) {
	if m.err != nil {
		return Snapshot{}, m.err
	}
	if m.Done() {
		return Snapshot{}, ErrRunFinished
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	next := m.generation + 1

	subs := m.cfg.Population.SubPopulations()
	before := make([][][][]float64, len(subs))
	degenerate := make([]int, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, sp := range subs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			before[i] = sp.ActionFrequencies()
			if err := m.strategies.UpdateFitness(sp, m.aggregates); err != nil {
				return fmt.Errorf("sub-population %s: %w", sp.Name(), err)
			}
			degenerate[i] = m.strategies.Replicate(sp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.err = fmt.Errorf("generation %d: %w", next, err)
		m.logger.Error("generation failed", "generation", next, "error", err)
		return Snapshot{}, m.err
	}
	m.generation = next

	// Aggregates feed the next generation only, so they are rebuilt once
	// every sub-population has replicated.
	m.aggregates.Recompute(m.cfg.Population)

	if m.cfg.EvolveNorms {
		for i, sp := range subs {
			m.norms.UpdateUtilities(sp)
			degenerate[i] += m.norms.Replicate(sp)
		}
		m.aggregates.Recompute(m.cfg.Population)
	}

	delta := maxDelta(subs, before)
	if delta <= m.cfg.StabilityMargin {
		m.stable++
	} else {
		m.stable = 0
	}
	m.converged = m.stable >= m.cfg.MinNumStableGenerations
	m.timedOut = m.generation >= m.cfg.MaxGenerations

	m.last = GenerationDiagnostics{
		Generation:        m.generation,
		MaxDelta:          delta,
		StableGenerations: m.stable,
		MeanFitness:       meanFitness(subs),
		Status:            m.Status(),
	}
	for _, d := range degenerate {
		m.last.Degenerate += d
	}

	m.logger.Debug("generation evolved",
		"generation", m.generation,
		"max_delta", delta,
		"stable_generations", m.stable,
		"mean_fitness", m.last.MeanFitness,
	)
	if m.last.Degenerate > 0 {
		m.logger.Warn("zero mean fitness, simplices left unchanged",
			"generation", m.generation,
			"count", m.last.Degenerate,
		)
	}
	switch {
	case m.converged:
		m.logger.Info("evolution converged", "generation", m.generation, "stable_generations", m.stable)
	case m.timedOut:
		m.logger.Info("evolution timed out", "generation", m.generation, "max_delta", delta)
	}
	return m.Snapshot(), nil
}

// Run evolves until the machine converges or times out.
func (m *Machine) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{
		Diagnostics: make([]GenerationDiagnostics, 0, m.cfg.MaxGenerations-m.generation),
	}
	for !m.Done() {
		snapshot, err := m.Evolve(ctx)
		if err != nil {
			return RunResult{}, err
		}
		result.Diagnostics = append(result.Diagnostics, m.last)
		result.Final = snapshot
	}
	result.Generations = m.generation
	result.Converged = m.converged
	result.TimedOut = m.timedOut
	return result, nil
}

func maxDelta(subs []*population.SubPopulation, before [][][][]float64) float64 {
	delta := 0.0
	for i, sp := range subs {
		for ci, state := range sp.Contexts() {
			for ni, strategy := range state.Strategies {
				for ai, freq := range strategy.Frequency {
					delta = math.Max(delta, math.Abs(freq-before[i][ci][ni][ai]))
				}
			}
		}
	}
	return delta
}

// meanFitness is the proportion-weighted expected fitness of the population,
// averaged over contexts.
func meanFitness(subs []*population.SubPopulation) float64 {
	total := 0.0
	for _, sp := range subs {
		states := sp.Contexts()
		if len(states) == 0 {
			continue
		}
		perSub := 0.0
		for _, state := range states {
			for ni, strategy := range state.Strategies {
				for ai, freq := range strategy.Frequency {
					perSub += state.NormFrequency[ni] * freq * strategy.Fitness[ai]
				}
			}
		}
		total += sp.Proportion() * perSub / float64(len(states))
	}
	return total
}

func (m *Machine) Generation() int {
	return m.generation
}

func (m *Machine) Converged() bool {
	return m.converged
}

func (m *Machine) TimedOut() bool {
	return m.timedOut
}

// Err is the error that failed the machine, if any.
func (m *Machine) Err() error {
	return m.err
}

func (m *Machine) Done() bool {
	return m.converged || m.timedOut
}

func (m *Machine) Status() Status {
	switch {
	case m.converged:
		return StatusConverged
	case m.timedOut:
		return StatusTimedOut
	default:
		return StatusRunning
	}
}

// LastDiagnostics describes the most recent generation.
func (m *Machine) LastDiagnostics() GenerationDiagnostics {
	return m.last
}

func (m *Machine) Aggregates() *Aggregates {
	return m.aggregates
}

func (m *Machine) Population() *population.Population {
	return m.cfg.Population
}

func (m *Machine) Snapshot() Snapshot {
	return newSnapshot(m.generation, m.cfg.Population)
}
