package population

import (
	"errors"
	"fmt"
	"math"
)

const proportionTolerance = 1e-6

var ErrInvalidProportions = errors.New("sub-population proportions must sum to 1")

// Population is the set of sub-populations of a MAS.
type Population struct {
	subs []*SubPopulation
}

func New(subs ...*SubPopulation) (*Population, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: at least one sub-population is required", ErrInvalidSubPopulation)
	}
	names := make(map[string]struct{}, len(subs))
	total := 0.0
	for _, sp := range subs {
		if sp == nil {
			return nil, fmt.Errorf("%w: nil sub-population", ErrInvalidSubPopulation)
		}
		if _, dup := names[sp.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidSubPopulation, sp.Name())
		}
		names[sp.Name()] = struct{}{}
		total += sp.Proportion()
	}
	if math.Abs(total-1) > proportionTolerance {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidProportions, total)
	}
	return &Population{subs: append([]*SubPopulation(nil), subs...)}, nil
}

func (p *Population) SubPopulations() []*SubPopulation {
	return p.subs
}

func (p *Population) Len() int {
	return len(p.subs)
}

func (p *Population) SubPopulation(name string) (*SubPopulation, bool) {
	for _, sp := range p.subs {
		if sp.Name() == name {
			return sp, true
		}
	}
	return nil, false
}
