package population

import (
	"errors"
	"fmt"
	"math/rand"

	"ensm/internal/games"
	"ensm/internal/norms"
)

var (
	ErrInvalidSubPopulation = errors.New("invalid sub-population")
	ErrInvalidPayoffs       = errors.New("invalid payoffs")
)

type Initialization string

const (
	InitRandom  Initialization = "random"
	InitUniform Initialization = "uniform"
)

const (
	randomWeightMin = 70
	randomWeightMax = 100
)

// PayoffEntry gives the payoff of every role once the players perform Actions.
type PayoffEntry struct {
	Actions []string
	Payoffs []float64
}

type SubPopulationSpec struct {
	Name       string
	Proportion float64
	// Payoffs by game name.
	Payoffs map[string][]PayoffEntry
}

// Strategy is the mixed strategy of the agents that adopted one norm in one
// context. Frequency and Fitness are index-aligned with the context actions.
type Strategy struct {
	Frequency []float64
	Fitness   []float64
}

// ContextState owns everything a sub-population knows about one context.
// NormFrequency, NormUtility and Strategies are index-aligned with Norms.
type ContextState struct {
	Context       games.Context
	Actions       []string
	Norms         []norms.Norm
	NormFrequency []float64
	NormUtility   []float64
	Strategies    []Strategy
}

func (c *ContextState) ActionIndex(action string) int {
	for i, a := range c.Actions {
		if a == action {
			return i
		}
	}
	return -1
}

func (c *ContextState) NormIndex(n norms.Norm) int {
	for i, candidate := range c.Norms {
		if candidate.Equal(n) {
			return i
		}
	}
	return -1
}

// SubPopulation is a homogeneous slice of agents sharing one payoff profile.
type SubPopulation struct {
	name       string
	proportion float64
	payoffs    map[string]map[string][]float64
	contexts   []*ContextState
	index      map[games.Context]int
}

// NewSubPopulation validates the payoff table against the network and lays
// out one norm simplex and one action simplex per norm for every context of
// space. rng is only used by InitRandom.
func NewSubPopulation(spec SubPopulationSpec, network *games.Network, space *norms.Space, init Initialization, rng *rand.Rand) (*SubPopulation, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSubPopulation)
	}
	if spec.Proportion < 0 || spec.Proportion > 1 {
		return nil, fmt.Errorf("%w: %s: proportion %g outside [0, 1]", ErrInvalidSubPopulation, spec.Name, spec.Proportion)
	}
	switch init {
	case "":
		init = InitRandom
	case InitRandom, InitUniform:
	default:
		return nil, fmt.Errorf("%w: %s: unsupported initialization %q", ErrInvalidSubPopulation, spec.Name, init)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	payoffs, err := buildPayoffs(spec, network)
	if err != nil {
		return nil, err
	}

	sp := &SubPopulation{
		name:       spec.Name,
		proportion: spec.Proportion,
		payoffs:    payoffs,
		contexts:   make([]*ContextState, 0, space.Len()),
		index:      make(map[games.Context]int, space.Len()),
	}
	for _, cs := range space.Contexts() {
		state := &ContextState{
			Context:       cs.Context,
			Actions:       append([]string(nil), cs.Actions...),
			Norms:         append([]norms.Norm(nil), cs.Norms...),
			NormFrequency: distribution(len(cs.Norms), init, rng),
			NormUtility:   make([]float64, len(cs.Norms)),
			Strategies:    make([]Strategy, len(cs.Norms)),
		}
		for i := range state.Strategies {
			state.Strategies[i] = Strategy{
				Frequency: distribution(len(cs.Actions), init, rng),
				Fitness:   make([]float64, len(cs.Actions)),
			}
		}
		sp.index[cs.Context] = len(sp.contexts)
		sp.contexts = append(sp.contexts, state)
	}
	return sp, nil
}

func buildPayoffs(spec SubPopulationSpec, network *games.Network) (map[string]map[string][]float64, error) {
	out := make(map[string]map[string][]float64, len(spec.Payoffs))
	for gameName, entries := range spec.Payoffs {
		game, err := network.Game(gameName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayoffs, spec.Name, err)
		}
		table := make(map[string][]float64, len(entries))
		for _, entry := range entries {
			if _, err := game.Utility(entry.Actions); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayoffs, spec.Name, err)
			}
			if len(entry.Payoffs) != game.NumRoles() {
				return nil, fmt.Errorf("%w: %s: game %s combination %v has %d payoffs, want %d",
					ErrInvalidPayoffs, spec.Name, gameName, entry.Actions, len(entry.Payoffs), game.NumRoles())
			}
			key := games.CombinationKey(entry.Actions)
			if _, dup := table[key]; dup {
				return nil, fmt.Errorf("%w: %s: game %s: duplicate combination %v", ErrInvalidPayoffs, spec.Name, gameName, entry.Actions)
			}
			table[key] = append([]float64(nil), entry.Payoffs...)
		}
		out[gameName] = table
	}

	for _, game := range network.Games() {
		table, ok := out[game.Name()]
		if !ok {
			return nil, fmt.Errorf("%w: %s: no payoffs for game %s", ErrInvalidPayoffs, spec.Name, game.Name())
		}
		for _, combination := range game.Combinations() {
			if _, ok := table[games.CombinationKey(combination)]; !ok {
				return nil, fmt.Errorf("%w: %s: game %s: missing combination %v", ErrInvalidPayoffs, spec.Name, game.Name(), combination)
			}
		}
	}
	return out, nil
}

func distribution(n int, init Initialization, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if init == InitUniform {
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out
	}
	total := 0.0
	for i := range out {
		out[i] = float64(randomWeightMin + rng.Intn(randomWeightMax-randomWeightMin+1))
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func (s *SubPopulation) Name() string {
	return s.name
}

func (s *SubPopulation) Proportion() float64 {
	return s.proportion
}

// Payoff returns this sub-population's payoff for role when combination is
// played in game.
func (s *SubPopulation) Payoff(game string, combination []string, role int) (float64, error) {
	table, ok := s.payoffs[game]
	if !ok {
		return 0, fmt.Errorf("%w: %s: %s", games.ErrUnknownGame, s.name, game)
	}
	values, ok := table[games.CombinationKey(combination)]
	if !ok {
		return 0, fmt.Errorf("%w: %s: game %s: %v", games.ErrMissingUtility, s.name, game, combination)
	}
	if role < 0 || role >= len(values) {
		return 0, fmt.Errorf("%w: game %s role %d", games.ErrUnknownRole, game, role)
	}
	return values[role], nil
}

// Contexts returns the mutable per-context state, in norm space order.
func (s *SubPopulation) Contexts() []*ContextState {
	return s.contexts
}

func (s *SubPopulation) Context(ctx games.Context) (*ContextState, bool) {
	i, ok := s.index[ctx]
	if !ok {
		return nil, false
	}
	return s.contexts[i], true
}

func (s *SubPopulation) ActionFrequency(ctx games.Context, n norms.Norm, action string) (float64, bool) {
	state, ok := s.Context(ctx)
	if !ok {
		return 0, false
	}
	ni, ai := state.NormIndex(n), state.ActionIndex(action)
	if ni < 0 || ai < 0 {
		return 0, false
	}
	return state.Strategies[ni].Frequency[ai], true
}

func (s *SubPopulation) NormFrequency(ctx games.Context, n norms.Norm) (float64, bool) {
	state, ok := s.Context(ctx)
	if !ok {
		return 0, false
	}
	ni := state.NormIndex(n)
	if ni < 0 {
		return 0, false
	}
	return state.NormFrequency[ni], true
}

// ActionFrequencies copies the action frequencies as [context][norm][action].
func (s *SubPopulation) ActionFrequencies() [][][]float64 {
	out := make([][][]float64, len(s.contexts))
	for ci, state := range s.contexts {
		out[ci] = make([][]float64, len(state.Strategies))
		for ni, strategy := range state.Strategies {
			out[ci][ni] = append([]float64(nil), strategy.Frequency...)
		}
	}
	return out
}

func (s *SubPopulation) String() string {
	return s.name
}
