package norms

import (
	"errors"
	"fmt"

	"ensm/internal/games"
)

var ErrEmptyActionSpace = errors.New("empty action space")

// ContextSpace lists what can be done in one coordination context and the
// norms that may regulate it.
type ContextSpace struct {
	Context games.Context
	Actions []string
	Norms   []Norm
}

func (c ContextSpace) ActionIndex(action string) int {
	for i, a := range c.Actions {
		if a == action {
			return i
		}
	}
	return -1
}

func (c ContextSpace) NormIndex(n Norm) int {
	for i, candidate := range c.Norms {
		if candidate.Equal(n) {
			return i
		}
	}
	return -1
}

// Space holds the action and norm spaces of every context of a network.
// Every sub-population built from one Space shares its shape.
type Space struct {
	regulate bool
	contexts []ContextSpace
	index    map[games.Context]int
}

// NewSpace derives the action space of every context from the roles played
// in it and creates the norms that may apply there. Without regulation each
// context gets a single None norm.
func NewSpace(network *games.Network, regulate bool, ids *IDGenerator) (*Space, error) {
	s := &Space{regulate: regulate, index: map[games.Context]int{}}
	for _, ctx := range network.Contexts() {
		s.index[ctx] = len(s.contexts)
		s.contexts = append(s.contexts, ContextSpace{Context: ctx})
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
		sanctions := game.Sanctions()
		for _, ctx := range network.ContextsPlaying(gr) {
			cs := &s.contexts[s.index[ctx]]
			for _, action := range actions {
				if cs.ActionIndex(action) >= 0 {
					continue
				}
				cs.Actions = append(cs.Actions, action)
				if !regulate {
					continue
				}
				if len(sanctions) == 0 {
					cs.addNorm(New(ids, ctx, action, nil))
					continue
				}
				for i := range sanctions {
					cs.addNorm(New(ids, ctx, action, &sanctions[i]))
				}
			}
		}
	}

	for i := range s.contexts {
		cs := &s.contexts[i]
		if len(cs.Actions) == 0 {
			return nil, fmt.Errorf("%w: context %s", ErrEmptyActionSpace, cs.Context)
		}
		if !regulate {
			cs.Norms = []Norm{None(cs.Context)}
		}
	}
	return s, nil
}

// addNorm keeps the first norm of every Key.
func (c *ContextSpace) addNorm(n Norm) {
	if c.NormIndex(n) >= 0 {
		return
	}
	c.Norms = append(c.Norms, n)
}

func (s *Space) Regulated() bool {
	return s.regulate
}

// Contexts returns the context spaces in network context order. The slice
// is shared and must not be modified.
func (s *Space) Contexts() []ContextSpace {
	return s.contexts
}

func (s *Space) Context(ctx games.Context) (ContextSpace, bool) {
	i, ok := s.index[ctx]
	if !ok {
		return ContextSpace{}, false
	}
	return s.contexts[i], true
}

// Index returns the position of ctx in Contexts.
func (s *Space) Index(ctx games.Context) (int, bool) {
	i, ok := s.index[ctx]
	return i, ok
}

func (s *Space) Len() int {
	return len(s.contexts)
}

// NumNorms counts the norms of every context.
func (s *Space) NumNorms() int {
	total := 0
	for _, cs := range s.contexts {
		total += len(cs.Norms)
	}
	return total
}
