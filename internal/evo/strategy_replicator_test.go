package evo

import (
	"errors"
	"testing"

	"ensm/internal/games"
	"ensm/internal/population"
)

func TestReplicateSimplexKeepsSimplex(t *testing.T) {
	cases := []struct {
		name    string
		freqs   []float64
		fitness []float64
	}{
		{name: "two actions", freqs: []float64{0.4, 0.6}, fitness: []float64{3, 1}},
		{name: "three actions", freqs: []float64{0.2, 0.3, 0.5}, fitness: []float64{1, 2, 4}},
		{name: "at floor", freqs: []float64{FrequencyFloor, 1 - FrequencyFloor}, fitness: []float64{0.1, 10}},
		{name: "zero fitness entry", freqs: []float64{0.5, 0.5}, fitness: []float64{0, 2}},
		{name: "negative payoffs", freqs: []float64{0.5, 0.5}, fitness: []float64{-1, -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			freqs := append([]float64(nil), tc.freqs...)
			for range 50 {
				if !ReplicateSimplex(freqs, tc.fitness, FrequencyFloor) {
					t.Fatalf("unexpected degenerate step for %v", freqs)
				}
				assertSimplex(t, freqs, FrequencyFloor)
			}
		})
	}
}

func TestReplicateSimplexMonotonicity(t *testing.T) {
	freqs := []float64{0.3, 0.3, 0.4}
	fitness := []float64{5, 1, 2}
	mean := 0.3*5 + 0.3*1 + 0.4*2
	before := append([]float64(nil), freqs...)
	if !ReplicateSimplex(freqs, fitness, FrequencyFloor) {
		t.Fatal("unexpected degenerate step")
	}
	for i := range freqs {
		switch {
		case fitness[i] > mean && freqs[i] <= before[i]:
			t.Fatalf("action %d fitter than mean did not grow: %f -> %f", i, before[i], freqs[i])
		case fitness[i] < mean && freqs[i] >= before[i]:
			t.Fatalf("action %d less fit than mean did not shrink: %f -> %f", i, before[i], freqs[i])
		}
	}
	if !approxEqual(freqs[0], 0.3*5/mean) {
		t.Fatalf("unexpected replicator step: got %f want %f", freqs[0], 0.3*5/mean)
	}
}

func TestReplicateSimplexZeroMeanFitness(t *testing.T) {
	freqs := []float64{0.25, 0.75}
	if ReplicateSimplex(freqs, []float64{0, 0}, FrequencyFloor) {
		t.Fatal("expected degenerate step")
	}
	if freqs[0] != 0.25 || freqs[1] != 0.75 {
		t.Fatalf("frequencies changed: %v", freqs)
	}
	// Fitness values that cancel out leave a zero mean as well.
	freqs = []float64{0.5, 0.5}
	if ReplicateSimplex(freqs, []float64{2, -2}, FrequencyFloor) {
		t.Fatal("expected degenerate step for cancelling fitness")
	}
}

func TestReplicateSimplexClampsToFloor(t *testing.T) {
	freqs := []float64{0.5, 0.5}
	fitness := []float64{1e-9, 1}
	ReplicateSimplex(freqs, fitness, FrequencyFloor)
	if freqs[0] != FrequencyFloor {
		t.Fatalf("expected clipped frequency at floor, got %g", freqs[0])
	}
	if !approxEqual(freqs[1], 1-FrequencyFloor) {
		t.Fatalf("expected remaining mass on the fit action, got %f", freqs[1])
	}
}

func TestUpdateFitnessHandComputed(t *testing.T) {
	n := pdNetwork(t)
	space := pdSpace(t, n, false)
	pop := pdPopulation(t, n, space, population.InitUniform, 1, defectorSpec(1))
	sp := pop.SubPopulations()[0]

	two, _ := sp.Context(playerTwo)
	two.Strategies[0].Frequency = []float64{0.8, 0.2}
	agg := newAggregates(t, n, space, pop)

	r, err := NewStrategyReplicator(n, Min)
	if err != nil {
		t.Fatalf("new replicator: %v", err)
	}
	if err := r.UpdateFitness(sp, agg); err != nil {
		t.Fatalf("update fitness: %v", err)
	}

	one, _ := sp.Context(playerOne)
	// Role 0 faces C with 0.8 and D with 0.2.
	if got, want := one.Strategies[0].Fitness[0], 3*0.8+1*0.2; !approxEqual(got, want) {
		t.Fatalf("fitness of C: got %f want %f", got, want)
	}
	if got, want := one.Strategies[0].Fitness[1], 5*0.8+2*0.2; !approxEqual(got, want) {
		t.Fatalf("fitness of D: got %f want %f", got, want)
	}
	// Role 1 faces a uniform role 0.
	if got, want := two.Strategies[0].Fitness[0], 3*0.5+2*0.5; !approxEqual(got, want) {
		t.Fatalf("fitness of C in role 1: got %f want %f", got, want)
	}
	if got, want := two.Strategies[0].Fitness[1], 1.0; !approxEqual(got, want) {
		t.Fatalf("fitness of D in role 1: got %f want %f", got, want)
	}
}

func TestUpdateFitnessAggregatesJointContext(t *testing.T) {
	dep := games.Dependency{A: games.GameRole{Game: "pd", Role: 0}, B: games.GameRole{Game: "pd", Role: 1}}
	n := pdNetwork(t, dep)
	space := pdSpace(t, n, true)
	joint := games.JoinContexts(playerOne, playerTwo)

	cases := []struct {
		name  string
		fn    AggregateFunc
		wantC float64
		wantD float64
	}{
		// Role 0: C=2, D=3.5. Role 1: C=2.5, D=1.
		{name: "min", fn: Min, wantC: 2, wantD: 1},
		{name: "max", fn: Max, wantC: 2.5, wantD: 3.5},
		{name: "mean", fn: Mean, wantC: 2.25, wantD: 2.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pop := pdPopulation(t, n, space, population.InitUniform, 1, defectorSpec(1))
			sp := pop.SubPopulations()[0]
			agg := newAggregates(t, n, space, pop)
			r, err := NewStrategyReplicator(n, tc.fn)
			if err != nil {
				t.Fatalf("new replicator: %v", err)
			}
			if err := r.UpdateFitness(sp, agg); err != nil {
				t.Fatalf("update fitness: %v", err)
			}
			state, ok := sp.Context(joint)
			if !ok {
				t.Fatal("missing joint context")
			}
			for ni, strategy := range state.Strategies {
				if !approxEqual(strategy.Fitness[0], tc.wantC) || !approxEqual(strategy.Fitness[1], tc.wantD) {
					t.Fatalf("norm %d: got fitness %v want [%f %f]", ni, strategy.Fitness, tc.wantC, tc.wantD)
				}
			}
		})
	}
}

func TestFitnessInGameUnknownRole(t *testing.T) {
	n := pdNetwork(t)
	space := pdSpace(t, n, false)
	pop := pdPopulation(t, n, space, population.InitUniform, 1, cooperatorSpec(1))
	r, err := NewStrategyReplicator(n, nil)
	if err != nil {
		t.Fatalf("new replicator: %v", err)
	}
	agg := newAggregates(t, n, space, pop)
	if _, err := r.FitnessInGame(pop.SubPopulations()[0], games.GameRole{Game: "pd", Role: 4}, "C", agg); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestJointFrequencyExcludesEvaluatedRole(t *testing.T) {
	n := pdNetwork(t)
	space := pdSpace(t, n, false)
	pop := pdPopulation(t, n, space, population.InitUniform, 1, cooperatorSpec(1))
	sp := pop.SubPopulations()[0]
	one, _ := sp.Context(playerOne)
	one.Strategies[0].Frequency = []float64{0.9, 0.1}
	agg := newAggregates(t, n, space, pop)

	gr := games.GameRole{Game: "pd", Role: 1}
	got, err := JointFrequency(gr, []string{"D", "C"}, agg)
	if err != nil {
		t.Fatalf("joint frequency: %v", err)
	}
	if !approxEqual(got, 0.1) {
		t.Fatalf("unexpected joint frequency %f", got)
	}
}

func TestJointFrequencyRejectsMissingAggregate(t *testing.T) {
	n := pdNetwork(t)
	space := pdSpace(t, n, false)
	pop := pdPopulation(t, n, space, population.InitUniform, 1, cooperatorSpec(1))
	agg := newAggregates(t, n, space, pop)

	gr := games.GameRole{Game: "pd", Role: 1}
	if _, err := JointFrequency(gr, []string{"X", "C"}, agg); !errors.Is(err, ErrMissingAggregate) {
		t.Fatalf("expected ErrMissingAggregate for unknown action, got %v", err)
	}
	if _, err := JointFrequency(gr, []string{"C", "C", "C"}, agg); !errors.Is(err, ErrMissingAggregate) {
		t.Fatalf("expected ErrMissingAggregate for unknown role, got %v", err)
	}
}

func TestReplicateCountsDegenerateSimplices(t *testing.T) {
	n := pdNetwork(t)
	space := pdSpace(t, n, false)
	pop := pdPopulation(t, n, space, population.InitUniform, 1, cooperatorSpec(1))
	sp := pop.SubPopulations()[0]
	r, err := NewStrategyReplicator(n, Min)
	if err != nil {
		t.Fatalf("new replicator: %v", err)
	}
	// The fitness cache starts at zero.
	if got := r.Replicate(sp); got != 2 {
		t.Fatalf("expected 2 degenerate simplices, got %d", got)
	}
	for _, state := range sp.Contexts() {
		if state.Strategies[0].Frequency[0] != 0.5 {
			t.Fatalf("degenerate simplex changed: %v", state.Strategies[0].Frequency)
		}
	}
}
