package evo

import (
	"math"
	"math/rand"
	"testing"

	"ensm/internal/games"
	"ensm/internal/norms"
	"ensm/internal/population"
)

var (
	playerOne = games.MustParseContext("player(one)")
	playerTwo = games.MustParseContext("player(two)")
)

func pdNetwork(t *testing.T, deps ...games.Dependency) *games.Network {
	t.Helper()
	pd, err := games.NewGame("pd",
		[]games.Context{playerOne, playerTwo},
		[]games.Utility{
			{Actions: []string{"C", "C"}, Payoff: 1},
			{Actions: []string{"C", "D"}, Payoff: 0.5},
			{Actions: []string{"D", "C"}, Payoff: 0.5},
			{Actions: []string{"D", "D"}, Payoff: 0},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	n, err := games.NewNetwork([]*games.Game{pd}, deps)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return n
}

func pdSpace(t *testing.T, n *games.Network, regulate bool) *norms.Space {
	t.Helper()
	s, err := norms.NewSpace(n, regulate, &norms.IDGenerator{})
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	return s
}

func cooperatorSpec(proportion float64) population.SubPopulationSpec {
	return population.SubPopulationSpec{
		Name:       "cooperators",
		Proportion: proportion,
		Payoffs: map[string][]population.PayoffEntry{
			"pd": {
				{Actions: []string{"C", "C"}, Payoffs: []float64{3, 3}},
				{Actions: []string{"C", "D"}, Payoffs: []float64{3, 1}},
				{Actions: []string{"D", "C"}, Payoffs: []float64{1, 3}},
				{Actions: []string{"D", "D"}, Payoffs: []float64{1, 1}},
			},
		},
	}
}

func defectorSpec(proportion float64) population.SubPopulationSpec {
	return population.SubPopulationSpec{
		Name:       "defectors",
		Proportion: proportion,
		Payoffs: map[string][]population.PayoffEntry{
			"pd": {
				{Actions: []string{"C", "C"}, Payoffs: []float64{3, 3}},
				{Actions: []string{"C", "D"}, Payoffs: []float64{1, 1}},
				{Actions: []string{"D", "C"}, Payoffs: []float64{5, 2}},
				{Actions: []string{"D", "D"}, Payoffs: []float64{2, 1}},
			},
		},
	}
}

// pdPopulation builds the cooperator/defector population. Specs with a zero
// proportion are left out.
func pdPopulation(t *testing.T, n *games.Network, space *norms.Space, init population.Initialization, seed int64, specs ...population.SubPopulationSpec) *population.Population {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var subs []*population.SubPopulation
	for _, spec := range specs {
		if spec.Proportion == 0 {
			continue
		}
		sp, err := population.NewSubPopulation(spec, n, space, init, rng)
		if err != nil {
			t.Fatalf("new sub-population %s: %v", spec.Name, err)
		}
		subs = append(subs, sp)
	}
	pop, err := population.New(subs...)
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	return pop
}

func newAggregates(t *testing.T, n *games.Network, space *norms.Space, pop *population.Population) *Aggregates {
	t.Helper()
	agg, err := NewAggregates(n, space)
	if err != nil {
		t.Fatalf("new aggregates: %v", err)
	}
	agg.Recompute(pop)
	return agg
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertSimplex(t *testing.T, freqs []float64, floor float64) {
	t.Helper()
	total := 0.0
	for _, f := range freqs {
		if f < floor-1e-15 {
			t.Fatalf("frequency below floor in %v", freqs)
		}
		total += f
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("frequencies %v sum to %.12f", freqs, total)
	}
}
