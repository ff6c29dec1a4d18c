package evo

import "ensm/internal/population"

type ActionFrequency struct {
	Action    string  `json:"action"`
	Frequency float64 `json:"frequency"`
	Fitness   float64 `json:"fitness"`
}

type NormSnapshot struct {
	Norm      string            `json:"norm"`
	Frequency float64           `json:"frequency"`
	Utility   float64           `json:"utility"`
	Actions   []ActionFrequency `json:"actions"`
}

type ContextSnapshot struct {
	Context string         `json:"context"`
	Norms   []NormSnapshot `json:"norms"`
}

type SubPopulationSnapshot struct {
	Name       string            `json:"name"`
	Proportion float64           `json:"proportion"`
	Contexts   []ContextSnapshot `json:"contexts"`
}

// Snapshot is a copy of every sub-population's mixed strategies after a
// generation.
type Snapshot struct {
	Generation     int                     `json:"generation"`
	SubPopulations []SubPopulationSnapshot `json:"sub_populations"`
}

func newSnapshot(generation int, pop *population.Population) Snapshot {
	out := Snapshot{
		Generation:     generation,
		SubPopulations: make([]SubPopulationSnapshot, 0, pop.Len()),
	}
	for _, sp := range pop.SubPopulations() {
		sub := SubPopulationSnapshot{
			Name:       sp.Name(),
			Proportion: sp.Proportion(),
			Contexts:   make([]ContextSnapshot, 0, len(sp.Contexts())),
		}
		for _, state := range sp.Contexts() {
			cs := ContextSnapshot{
				Context: state.Context.String(),
				Norms:   make([]NormSnapshot, 0, len(state.Norms)),
			}
			for ni, n := range state.Norms {
				strategy := state.Strategies[ni]
				ns := NormSnapshot{
					Norm:      n.String(),
					Frequency: state.NormFrequency[ni],
					Utility:   state.NormUtility[ni],
					Actions:   make([]ActionFrequency, 0, len(state.Actions)),
				}
				for ai, action := range state.Actions {
					ns.Actions = append(ns.Actions, ActionFrequency{
						Action:    action,
						Frequency: strategy.Frequency[ai],
						Fitness:   strategy.Fitness[ai],
					})
				}
				cs.Norms = append(cs.Norms, ns)
			}
			sub.Contexts = append(sub.Contexts, cs)
		}
		out.SubPopulations = append(out.SubPopulations, sub)
	}
	return out
}

// ActionFrequency looks up the frequency of action under the norm rendered
// as norm, in ctx, for the named sub-population.
func (s Snapshot) ActionFrequency(subPopulation, ctx, norm, action string) (float64, bool) {
	for _, sub := range s.SubPopulations {
		if sub.Name != subPopulation {
			continue
		}
		for _, cs := range sub.Contexts {
			if cs.Context != ctx {
				continue
			}
			for _, ns := range cs.Norms {
				if ns.Norm != norm {
					continue
				}
				for _, af := range ns.Actions {
					if af.Action == action {
						return af.Frequency, true
					}
				}
			}
		}
	}
	return 0, false
}
