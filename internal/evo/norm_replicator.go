package evo

import "ensm/internal/population"

// NormReplicator evolves the norm simplex of every context one level above
// the StrategyReplicator: a norm's utility is the expected fitness of the
// agents that adopted it, and norm frequencies follow the same replicator
// equation as actions.
//
// Sanctions carried by norms do not enter the utility yet.
type NormReplicator struct {
	floor float64
}

func NewNormReplicator() *NormReplicator {
	return &NormReplicator{floor: FrequencyFloor}
}

// UpdateUtilities sets the utility of every norm of sp to the
// frequency-weighted fitness of its action simplex. The fitness cache must
// be current.
func (r *NormReplicator) UpdateUtilities(sp *population.SubPopulation) {
	for _, state := range sp.Contexts() {
		for ni, strategy := range state.Strategies {
			utility := 0.0
			for ai, freq := range strategy.Frequency {
				utility += freq * strategy.Fitness[ai]
			}
			state.NormUtility[ni] = utility
		}
	}
}

// Replicate updates every norm simplex of sp from the utilities and returns
// how many were left unchanged for lack of utility.
func (r *NormReplicator) Replicate(sp *population.SubPopulation) int {
	degenerate := 0
	for _, state := range sp.Contexts() {
		if !ReplicateSimplex(state.NormFrequency, state.NormUtility, r.floor) {
			degenerate++
		}
	}
	return degenerate
}
