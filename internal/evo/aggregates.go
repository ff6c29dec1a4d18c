package evo

import (
	"fmt"

	"ensm/internal/games"
	"ensm/internal/norms"
	"ensm/internal/population"
)

type gameRoleIndex struct {
	contexts []int
	// actions[a][k] is the index of action a in the context contexts[k].
	actions map[string][]int
}

// Aggregates are the population-wide mean action frequencies that drive
// the next generation's fitness evaluation. Tables are index-aligned with
// the norm space.
type Aggregates struct {
	space *norms.Space

	byContextNormAction [][][]float64
	byContextAction     [][]float64
	byGameRoleAction    map[games.GameRole]map[string]float64

	gameRoles map[games.GameRole]gameRoleIndex
}

func NewAggregates(network *games.Network, space *norms.Space) (*Aggregates, error) {
	a := &Aggregates{
		space:               space,
		byContextNormAction: make([][][]float64, space.Len()),
		byContextAction:     make([][]float64, space.Len()),
		byGameRoleAction:    map[games.GameRole]map[string]float64{},
		gameRoles:           map[games.GameRole]gameRoleIndex{},
	}
	for ci, cs := range space.Contexts() {
		a.byContextNormAction[ci] = make([][]float64, len(cs.Norms))
		for ni := range cs.Norms {
			a.byContextNormAction[ci][ni] = make([]float64, len(cs.Actions))
		}
		a.byContextAction[ci] = make([]float64, len(cs.Actions))
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
		idx := gameRoleIndex{actions: make(map[string][]int, len(actions))}
		for _, ctx := range network.ContextsPlaying(gr) {
			ci, ok := space.Index(ctx)
			if !ok {
				return nil, fmt.Errorf("context %s of %s missing from norm space", ctx, gr)
			}
			idx.contexts = append(idx.contexts, ci)
			cs := space.Contexts()[ci]
			for _, action := range actions {
				ai := cs.ActionIndex(action)
				if ai < 0 {
					return nil, fmt.Errorf("action %s of %s missing from context %s", action, gr, ctx)
				}
				idx.actions[action] = append(idx.actions[action], ai)
			}
		}
		a.gameRoles[gr] = idx
		a.byGameRoleAction[gr] = make(map[string]float64, len(actions))
	}
	return a, nil
}

// Recompute rebuilds every table from the current sub-population state.
// The mean by (context, norm, action) and by (context, action) are
// proportion-weighted sums, the latter also weighted by norm frequency. The
// mean by (game, role, action) is the plain average of the context mean over
// the contexts in which the role is played.
func (a *Aggregates) Recompute(pop *population.Population) {
	for ci := range a.byContextAction {
		clear(a.byContextAction[ci])
		for ni := range a.byContextNormAction[ci] {
			clear(a.byContextNormAction[ci][ni])
		}
	}
	for _, sp := range pop.SubPopulations() {
		p := sp.Proportion()
		for ci, state := range sp.Contexts() {
			for ni, strategy := range state.Strategies {
				normFreq := state.NormFrequency[ni]
				for ai, freq := range strategy.Frequency {
					a.byContextNormAction[ci][ni][ai] += p * freq
					a.byContextAction[ci][ai] += p * normFreq * freq
				}
			}
		}
	}
	for gr, idx := range a.gameRoles {
		out := a.byGameRoleAction[gr]
		for action, positions := range idx.actions {
			if len(idx.contexts) == 0 {
				out[action] = 0
				continue
			}
			total := 0.0
			for k, ci := range idx.contexts {
				total += a.byContextAction[ci][positions[k]]
			}
			out[action] = total / float64(len(idx.contexts))
		}
	}
}

func (a *Aggregates) ContextNormAction(ctx games.Context, n norms.Norm, action string) (float64, bool) {
	ci, ok := a.space.Index(ctx)
	if !ok {
		return 0, false
	}
	cs := a.space.Contexts()[ci]
	ni, ai := cs.NormIndex(n), cs.ActionIndex(action)
	if ni < 0 || ai < 0 {
		return 0, false
	}
	return a.byContextNormAction[ci][ni][ai], true
}

func (a *Aggregates) ContextAction(ctx games.Context, action string) (float64, bool) {
	ci, ok := a.space.Index(ctx)
	if !ok {
		return 0, false
	}
	ai := a.space.Contexts()[ci].ActionIndex(action)
	if ai < 0 {
		return 0, false
	}
	return a.byContextAction[ci][ai], true
}

// GameRoleAction is the mean frequency with which action is played in role
// gr across the whole population.
func (a *Aggregates) GameRoleAction(gr games.GameRole, action string) (float64, bool) {
	byAction, ok := a.byGameRoleAction[gr]
	if !ok {
		return 0, false
	}
	v, ok := byAction[action]
	return v, ok
}
