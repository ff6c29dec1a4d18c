package evo

import (
	"errors"
	"fmt"
	"math"

	"ensm/internal/games"
	"ensm/internal/population"
)

var ErrMissingAggregate = errors.New("missing aggregate")

const (
	// FrequencyFloor keeps every action alive under multiplicative updates.
	FrequencyFloor = 1e-5

	zeroFitnessTolerance = 1e-12
)

// StrategyReplicator evaluates the fitness of every action and applies the
// discrete replicator equation to the action simplices of a sub-population.
// It only reads the network, so one replicator may serve concurrent
// sub-populations.
type StrategyReplicator struct {
	network   *games.Network
	aggregate AggregateFunc
	floor     float64

	rolesByContext map[games.Context][]games.GameRole
	combinations   map[games.GameRole]map[string][][]string
}

func NewStrategyReplicator(network *games.Network, aggregate AggregateFunc) (*StrategyReplicator, error) {
	if network == nil {
		return nil, fmt.Errorf("games network is required")
	}
	if aggregate == nil {
		aggregate = Min
	}
	r := &StrategyReplicator{
		network:        network,
		aggregate:      aggregate,
		floor:          FrequencyFloor,
		rolesByContext: map[games.Context][]games.GameRole{},
		combinations:   map[games.GameRole]map[string][][]string{},
	}
	for _, ctx := range network.Contexts() {
		r.rolesByContext[ctx] = network.RolesPlayedIn(ctx)
	}
	for _, gr := range network.GameRoles() {
		game, err := network.Game(gr.Game)
		if err != nil {
			return nil, err
		}
		actions, err := game.ActionSpace(gr.Role)
		if err != nil {
			return nil, err
		}
		byAction := make(map[string][][]string, len(actions))
		for _, action := range actions {
			combinations, err := game.CombinationsWith(gr.Role, action)
			if err != nil {
				return nil, err
			}
			byAction[action] = combinations
		}
		r.combinations[gr] = byAction
	}
	return r, nil
}

// UpdateFitness fills the fitness cache of every (context, norm, action) of
// sp from the aggregates of the previous generation. It must run for the
// whole sub-population before Replicate.
func (r *StrategyReplicator) UpdateFitness(sp *population.SubPopulation, agg *Aggregates) error {
	for _, state := range sp.Contexts() {
		roles := r.rolesByContext[state.Context]
		values := make([]float64, len(roles))
		for ai, action := range state.Actions {
			for k, gr := range roles {
				f, err := r.FitnessInGame(sp, gr, action, agg)
				if err != nil {
					return fmt.Errorf("context %s: %w", state.Context, err)
				}
				values[k] = f
			}
			// The payoff of an action does not depend on the norm the agents
			// adopted, so every norm sees the same fitness.
			fitness := r.aggregate(values)
			for ni := range state.Strategies {
				state.Strategies[ni].Fitness[ai] = fitness
			}
		}
	}
	return nil
}

// FitnessInGame is the expected payoff of playing action in role gr, given
// how often the rest of the population plays every other role's actions.
func (r *StrategyReplicator) FitnessInGame(sp *population.SubPopulation, gr games.GameRole, action string, agg *Aggregates) (float64, error) {
	byAction, ok := r.combinations[gr]
	if !ok {
		return 0, fmt.Errorf("%w: %s", games.ErrUnknownRole, gr)
	}
	fitness := 0.0
	for _, combination := range byAction[action] {
		payoff, err := sp.Payoff(gr.Game, combination, gr.Role)
		if err != nil {
			return 0, err
		}
		joint, err := JointFrequency(gr, combination, agg)
		if err != nil {
			return 0, err
		}
		fitness += payoff * joint
	}
	return fitness, nil
}

// JointFrequency is the product of the population mean frequencies of the
// actions the other roles play in combination. The evaluated role is
// excluded.
func JointFrequency(gr games.GameRole, combination []string, agg *Aggregates) (float64, error) {
	joint := 1.0
	for role, action := range combination {
		if role == gr.Role {
			continue
		}
		other := games.GameRole{Game: gr.Game, Role: role}
		freq, ok := agg.GameRoleAction(other, action)
		if !ok {
			return 0, fmt.Errorf("%w: %s action %s", ErrMissingAggregate, other, action)
		}
		joint *= freq
	}
	return joint, nil
}

// Replicate updates every action simplex of sp from its fitness cache and
// returns how many simplices were left unchanged for lack of fitness.
func (r *StrategyReplicator) Replicate(sp *population.SubPopulation) int {
	degenerate := 0
	for _, state := range sp.Contexts() {
		for ni := range state.Strategies {
			strategy := &state.Strategies[ni]
			if !ReplicateSimplex(strategy.Frequency, strategy.Fitness, r.floor) {
				degenerate++
			}
		}
	}
	return degenerate
}

// ReplicateSimplex applies one step of the discrete replicator equation to
// freqs in place:
//
//	f'(a) = max(f(a) * fitness(a) / mean, floor), then renormalized.
//
// Renormalization keeps clipped entries at floor and rescales the rest, so
// the result is a simplex with no entry below floor. When the mean fitness
// is zero the update is undefined; freqs are left unchanged and false is
// returned.
func ReplicateSimplex(freqs, fitness []float64, floor float64) bool {
	mean := 0.0
	for i, f := range freqs {
		mean += f * fitness[i]
	}
	if math.IsNaN(mean) || math.Abs(mean) < zeroFitnessTolerance {
		return false
	}

	n := len(freqs)
	next := make([]float64, n)
	clipped := make([]bool, n)
	for i, f := range freqs {
		next[i] = f * fitness[i] / mean
		if math.IsNaN(next[i]) || next[i] < floor {
			clipped[i] = true
		}
	}

	for range n + 1 {
		fixed, free := 0.0, 0.0
		for i := range next {
			if clipped[i] {
				fixed += floor
			} else {
				free += next[i]
			}
		}
		if free <= 0 || fixed >= 1 {
			for i := range freqs {
				freqs[i] = 1 / float64(n)
			}
			return true
		}
		scale := (1 - fixed) / free
		changed := false
		for i := range next {
			if !clipped[i] && next[i]*scale < floor {
				clipped[i] = true
				changed = true
			}
		}
		if changed {
			continue
		}
		for i := range freqs {
			if clipped[i] {
				freqs[i] = floor
			} else {
				freqs[i] = next[i] * scale
			}
		}
		return true
	}
	return true
}
