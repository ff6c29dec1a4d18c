package ensm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"ensm/internal/config"
	"ensm/internal/evo"
	"ensm/internal/games"
	"ensm/internal/logging"
	"ensm/internal/norms"
	"ensm/internal/population"
	"ensm/internal/stats"
)

type Options struct {
	Logger *slog.Logger
}

type Client struct {
	logger *slog.Logger
}

// Simulation is a fully wired run: the games network, the norm space, the
// initial population and the machine that evolves it.
type Simulation struct {
	RunID      string
	Config     config.Config
	Network    *games.Network
	Space      *norms.Space
	Population *population.Population
	Machine    *evo.Machine
}

type RunRequest struct {
	// ConfigPath is read when Config is nil.
	ConfigPath string
	Config     *config.Config
	// Overrides; zero keeps the configured value.
	MaxGenerations int
	Workers        int
}

type RunSummary struct {
	RunID  string
	Result evo.RunResult
	Report stats.Report
}

type ValidationSummary struct {
	Games          int `json:"games"`
	Dependencies   int `json:"dependencies"`
	Contexts       int `json:"contexts"`
	JointContexts  int `json:"joint_contexts"`
	Norms          int `json:"norms"`
	SubPopulations int `json:"sub_populations"`
}

type ContextItem struct {
	Context string           `json:"context"`
	Joint   bool             `json:"joint"`
	Actions []string         `json:"actions"`
	Roles   []games.GameRole `json:"roles"`
}

type DependencyItem struct {
	From games.GameRole `json:"from"`
	To   games.GameRole `json:"to"`
}

type NetworkSummary struct {
	Contexts     []ContextItem    `json:"contexts"`
	Dependencies []DependencyItem `json:"dependencies"`
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{logger: logger}
}

// Build wires a simulation from a validated config. Every configuration
// mistake the core detects is returned wrapped in config.ErrInvalidConfig.
func (c *Client) Build(cfg config.Config) (*Simulation, error) {
	network, space, err := buildNetwork(cfg)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	initMode := population.Initialization(cfg.Initialization)
	subs := make([]*population.SubPopulation, 0, len(cfg.Population))
	for _, spec := range cfg.SubPopulationSpecs() {
		sp, err := population.NewSubPopulation(spec, network, space, initMode, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		subs = append(subs, sp)
	}
	pop, err := population.New(subs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	aggregate, err := evo.ResolveAggregation(cfg.FitnessAggregation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	runID := uuid.NewString()
	machine, err := evo.NewMachine(evo.MachineConfig{
		Network:                 network,
		Space:                   space,
		Population:              pop,
		MaxGenerations:          cfg.MaxGenerations,
		StabilityMargin:         cfg.StabilityMargin,
		MinNumStableGenerations: cfg.MinNumStableGenerations,
		EvolveNorms:             cfg.EvolveNorms,
		Aggregation:             aggregate,
		Workers:                 cfg.Workers,
		Logger:                  c.logger.With("run_id", runID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	return &Simulation{
		RunID:      runID,
		Config:     cfg,
		Network:    network,
		Space:      space,
		Population: pop,
		Machine:    machine,
	}, nil
}

func buildNetwork(cfg config.Config) (*games.Network, *norms.Space, error) {
	gs, err := cfg.BuildGames()
	if err != nil {
		return nil, nil, err
	}
	network, err := games.NewNetwork(gs, cfg.Dependencies())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	space, err := norms.NewSpace(network, cfg.Regulate, &norms.IDGenerator{})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return network, space, nil
}

// Run builds the simulation described by req and evolves it until it
// converges or times out.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := resolveConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	sim, err := c.Build(cfg)
	if err != nil {
		return RunSummary{}, err
	}

	c.logger.Info("evolution started",
		"run_id", sim.RunID,
		"contexts", sim.Space.Len(),
		"norms", sim.Space.NumNorms(),
		"sub_populations", sim.Population.Len(),
		"max_generations", cfg.MaxGenerations,
	)
	result, err := sim.Machine.Run(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", sim.RunID, err)
	}
	c.logger.Info("evolution finished",
		"run_id", sim.RunID,
		"generations", result.Generations,
		"converged", result.Converged,
		"timed_out", result.TimedOut,
	)
	return RunSummary{
		RunID:  sim.RunID,
		Result: result,
		Report: stats.BuildReport(sim.RunID, result),
	}, nil
}

// Validate builds everything a run needs without evolving it.
func (c *Client) Validate(req RunRequest) (ValidationSummary, error) {
	cfg, err := resolveConfig(req)
	if err != nil {
		return ValidationSummary{}, err
	}
	sim, err := c.Build(cfg)
	if err != nil {
		return ValidationSummary{}, err
	}
	summary := ValidationSummary{
		Games:          len(sim.Network.Games()),
		Dependencies:   len(cfg.GameDependencies),
		Contexts:       sim.Space.Len(),
		Norms:          sim.Space.NumNorms(),
		SubPopulations: sim.Population.Len(),
	}
	for _, ctx := range sim.Network.Contexts() {
		if sim.Network.IsJoint(ctx) {
			summary.JointContexts++
		}
	}
	return summary, nil
}

// Network describes the coordination contexts of the games network and the
// dependencies that induced them.
func (c *Client) Network(req RunRequest) (NetworkSummary, error) {
	cfg, err := resolveConfig(req)
	if err != nil {
		return NetworkSummary{}, err
	}
	network, space, err := buildNetwork(cfg)
	if err != nil {
		return NetworkSummary{}, err
	}
	var summary NetworkSummary
	for _, cs := range space.Contexts() {
		summary.Contexts = append(summary.Contexts, ContextItem{
			Context: cs.Context.String(),
			Joint:   network.IsJoint(cs.Context),
			Actions: append([]string(nil), cs.Actions...),
			Roles:   network.RolesPlayedIn(cs.Context),
		})
	}
	seen := map[[2]games.GameRole]struct{}{}
	for _, gr := range network.GameRoles() {
		for _, dep := range network.Dependencies(gr) {
			if _, ok := seen[[2]games.GameRole{dep, gr}]; ok {
				continue
			}
			seen[[2]games.GameRole{gr, dep}] = struct{}{}
			summary.Dependencies = append(summary.Dependencies, DependencyItem{From: gr, To: dep})
		}
	}
	return summary, nil
}

func resolveConfig(req RunRequest) (config.Config, error) {
	var cfg config.Config
	switch {
	case req.Config != nil:
		cfg = *req.Config
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	case req.ConfigPath != "":
		loaded, err := config.Load(req.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	default:
		return config.Config{}, errors.New("config or config path is required")
	}
	if req.MaxGenerations < 0 || req.Workers < 0 {
		return config.Config{}, fmt.Errorf("%w: overrides must be >= 0", config.ErrInvalidConfig)
	}
	if req.MaxGenerations > 0 {
		cfg.MaxGenerations = req.MaxGenerations
	}
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}
	return cfg, nil
}
