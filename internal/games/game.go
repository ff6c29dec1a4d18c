package games

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGame    = errors.New("invalid game")
	ErrMissingUtility = errors.New("action combination not covered by utility table")
	ErrUnknownRole    = errors.New("unknown role")
)

// Utility maps one action combination, ordered by role index, to a payoff.
type Utility struct {
	Actions []string
	Payoff  float64
}

type Sanction struct {
	Name    string  `json:"name"`
	Penalty float64 `json:"penalty"`
}

// Game is one strategic interaction. It is immutable after NewGame.
type Game struct {
	name         string
	contexts     []Context
	utilities    map[string]float64
	actionSpaces [][]string
	sanctions    []Sanction
}

// NewGame validates the utility table and derives every role's action
// space from the actions that appear at that role's position.
func NewGame(name string, contexts []Context, utilities []Utility, sanctions []Sanction) (*Game, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidGame)
	}
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: game %s: at least one role context is required", ErrInvalidGame, name)
	}
	for role, ctx := range contexts {
		if ctx.IsZero() {
			return nil, fmt.Errorf("%w: game %s: empty context for role %d", ErrInvalidGame, name, role)
		}
	}
	if len(utilities) == 0 {
		return nil, fmt.Errorf("%w: game %s: utility table is empty", ErrInvalidGame, name)
	}

	numRoles := len(contexts)
	g := &Game{
		name:         name,
		contexts:     append([]Context(nil), contexts...),
		utilities:    make(map[string]float64, len(utilities)),
		actionSpaces: make([][]string, numRoles),
		sanctions:    append([]Sanction(nil), sanctions...),
	}
	seen := make([]map[string]struct{}, numRoles)
	for role := range seen {
		seen[role] = map[string]struct{}{}
	}
	for _, u := range utilities {
		if len(u.Actions) != numRoles {
			return nil, fmt.Errorf("%w: game %s: combination %v has %d actions, want %d", ErrInvalidGame, name, u.Actions, len(u.Actions), numRoles)
		}
		key := CombinationKey(u.Actions)
		if _, dup := g.utilities[key]; dup {
			return nil, fmt.Errorf("%w: game %s: duplicate combination %v", ErrInvalidGame, name, u.Actions)
		}
		g.utilities[key] = u.Payoff
		for role, action := range u.Actions {
			if action == "" {
				return nil, fmt.Errorf("%w: game %s: empty action in combination %v", ErrInvalidGame, name, u.Actions)
			}
			if _, ok := seen[role][action]; ok {
				continue
			}
			seen[role][action] = struct{}{}
			g.actionSpaces[role] = append(g.actionSpaces[role], action)
		}
	}

	var missing error
	g.eachCombination(func(combination []string) bool {
		if _, ok := g.utilities[CombinationKey(combination)]; !ok {
			missing = fmt.Errorf("%w: game %s: %v", ErrMissingUtility, name, combination)
			return false
		}
		return true
	})
	if missing != nil {
		return nil, missing
	}
	return g, nil
}

// CombinationKey is the map key of an action combination.
func CombinationKey(actions []string) string {
	return strings.Join(actions, "\x1f")
}

func (g *Game) Name() string {
	return g.name
}

func (g *Game) NumRoles() int {
	return len(g.contexts)
}

func (g *Game) Contexts() []Context {
	return append([]Context(nil), g.contexts...)
}

func (g *Game) Context(role int) (Context, error) {
	if role < 0 || role >= len(g.contexts) {
		return Context{}, fmt.Errorf("%w: game %s role %d", ErrUnknownRole, g.name, role)
	}
	return g.contexts[role], nil
}

func (g *Game) ActionSpace(role int) ([]string, error) {
	if role < 0 || role >= len(g.actionSpaces) {
		return nil, fmt.Errorf("%w: game %s role %d", ErrUnknownRole, g.name, role)
	}
	return append([]string(nil), g.actionSpaces[role]...), nil
}

func (g *Game) Sanctions() []Sanction {
	return append([]Sanction(nil), g.sanctions...)
}

func (g *Game) Utility(combination []string) (float64, error) {
	u, ok := g.utilities[CombinationKey(combination)]
	if !ok {
		return 0, fmt.Errorf("%w: game %s: %v", ErrMissingUtility, g.name, combination)
	}
	return u, nil
}

// Combinations returns every action combination of the game.
func (g *Game) Combinations() [][]string {
	var out [][]string
	g.eachCombination(func(combination []string) bool {
		out = append(out, append([]string(nil), combination...))
		return true
	})
	return out
}

// CombinationsWith returns the action combinations in which role plays action.
func (g *Game) CombinationsWith(role int, action string) ([][]string, error) {
	if role < 0 || role >= len(g.actionSpaces) {
		return nil, fmt.Errorf("%w: game %s role %d", ErrUnknownRole, g.name, role)
	}
	var out [][]string
	g.eachCombination(func(combination []string) bool {
		if combination[role] == action {
			out = append(out, append([]string(nil), combination...))
		}
		return true
	})
	return out, nil
}

// eachCombination walks the Cartesian product of the action spaces with the
// last role varying fastest. The slice passed to fn is reused.
func (g *Game) eachCombination(fn func(combination []string) bool) {
	n := len(g.actionSpaces)
	for _, space := range g.actionSpaces {
		if len(space) == 0 {
			return
		}
	}
	idx := make([]int, n)
	combination := make([]string, n)
	for {
		for role := 0; role < n; role++ {
			combination[role] = g.actionSpaces[role][idx[role]]
		}
		if !fn(combination) {
			return
		}
		role := n - 1
		for role >= 0 {
			idx[role]++
			if idx[role] < len(g.actionSpaces[role]) {
				break
			}
			idx[role] = 0
			role--
		}
		if role < 0 {
			return
		}
	}
}

func (g *Game) String() string {
	return g.name
}
