package evo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrAggregationNotFound = errors.New("fitness aggregation not found")

// AggregateFunc folds the fitness of an action in every (game, role) a
// context participates in into the fitness of the action in that context.
// It returns 0 for an empty input.
type AggregateFunc func(values []float64) float64

const DefaultAggregation = "min"

var aggregations = map[string]AggregateFunc{
	"min":  Min,
	"max":  Max,
	"mean": Mean,
}

// ResolveAggregation returns the aggregation registered under name. An
// empty name resolves to DefaultAggregation.
func ResolveAggregation(name string) (AggregateFunc, error) {
	if name == "" {
		name = DefaultAggregation
	}
	fn, ok := aggregations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAggregationNotFound, name)
	}
	return fn, nil
}

func ListAggregations() []string {
	names := make([]string, 0, len(aggregations))
	for name := range aggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Min is the conservative (maximin) criterion: an agent that cannot tell
// which dependent game it faces is credited its worst payoff.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := math.Inf(1)
	for _, v := range values {
		out = math.Min(out, v)
	}
	return out
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := math.Inf(-1)
	for _, v := range values {
		out = math.Max(out, v)
	}
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
