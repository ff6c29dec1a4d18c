package games

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownGame = errors.New("unknown game")

// GameRole identifies one role of one game in a network.
type GameRole struct {
	Game string `json:"game"`
	Role int    `json:"role"`
}

func (gr GameRole) String() string {
	return fmt.Sprintf("(%s, %d)", gr.Game, gr.Role)
}

// Dependency links two game roles whose players perceive both contexts at once.
type Dependency struct {
	A GameRole
	B GameRole
}

// Network is the games network: the games of a MAS, the dependencies
// between their roles and the coordination contexts those induce. It is
// built once at setup and only read during evolution.
type Network struct {
	games           map[string]*Game
	order           []string
	dependencies    map[GameRole]map[GameRole]struct{}
	contextsPerRole map[GameRole]map[Context]struct{}
	rolesPerContext map[Context]map[string]map[int]struct{}
	jointContexts   map[Context]struct{}
}

func NewNetwork(games []*Game, dependencies []Dependency) (*Network, error) {
	n := &Network{
		games:           make(map[string]*Game, len(games)),
		dependencies:    map[GameRole]map[GameRole]struct{}{},
		contextsPerRole: map[GameRole]map[Context]struct{}{},
		rolesPerContext: map[Context]map[string]map[int]struct{}{},
		jointContexts:   map[Context]struct{}{},
	}
	for _, g := range games {
		if g == nil {
			return nil, fmt.Errorf("%w: nil game", ErrInvalidGame)
		}
		if _, dup := n.games[g.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate game name %s", ErrInvalidGame, g.Name())
		}
		n.games[g.Name()] = g
		n.order = append(n.order, g.Name())
		for role, ctx := range g.contexts {
			gr := GameRole{Game: g.Name(), Role: role}
			n.addContext(gr, ctx)
		}
	}
	for _, dep := range dependencies {
		if err := n.AddDependency(dep.A, dep.B); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddDependency registers a bidirectional link between a and b. When their
// base contexts differ, the joint context is played by both roles.
func (n *Network) AddDependency(a, b GameRole) error {
	ctxA, err := n.baseContext(a)
	if err != nil {
		return err
	}
	ctxB, err := n.baseContext(b)
	if err != nil {
		return err
	}
	n.link(a, b)
	n.link(b, a)
	if ctxA == ctxB {
		return nil
	}
	joint := JoinContexts(ctxA, ctxB)
	if joint != ctxA && joint != ctxB {
		n.jointContexts[joint] = struct{}{}
	}
	n.addContext(a, joint)
	n.addContext(b, joint)
	return nil
}

func (n *Network) baseContext(gr GameRole) (Context, error) {
	g, err := n.Game(gr.Game)
	if err != nil {
		return Context{}, err
	}
	return g.Context(gr.Role)
}

func (n *Network) link(from, to GameRole) {
	set, ok := n.dependencies[from]
	if !ok {
		set = map[GameRole]struct{}{}
		n.dependencies[from] = set
	}
	set[to] = struct{}{}
}

func (n *Network) addContext(gr GameRole, ctx Context) {
	contexts, ok := n.contextsPerRole[gr]
	if !ok {
		contexts = map[Context]struct{}{}
		n.contextsPerRole[gr] = contexts
	}
	contexts[ctx] = struct{}{}

	byGame, ok := n.rolesPerContext[ctx]
	if !ok {
		byGame = map[string]map[int]struct{}{}
		n.rolesPerContext[ctx] = byGame
	}
	roles, ok := byGame[gr.Game]
	if !ok {
		roles = map[int]struct{}{}
		byGame[gr.Game] = roles
	}
	roles[gr.Role] = struct{}{}
}

func (n *Network) Game(name string) (*Game, error) {
	g, ok := n.games[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, name)
	}
	return g, nil
}

// Games returns the games in insertion order.
func (n *Network) Games() []*Game {
	out := make([]*Game, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.games[name])
	}
	return out
}

// GameRoles returns every (game, role) pair, games in insertion order.
func (n *Network) GameRoles() []GameRole {
	var out []GameRole
	for _, name := range n.order {
		for role := 0; role < n.games[name].NumRoles(); role++ {
			out = append(out, GameRole{Game: name, Role: role})
		}
	}
	return out
}

func (n *Network) Dependencies(gr GameRole) []GameRole {
	out := make([]GameRole, 0, len(n.dependencies[gr]))
	for dep := range n.dependencies[gr] {
		out = append(out, dep)
	}
	sortGameRoles(out)
	return out
}

// ContextsPlaying returns the base and joint contexts under which gr is evaluated.
func (n *Network) ContextsPlaying(gr GameRole) []Context {
	out := make([]Context, 0, len(n.contextsPerRole[gr]))
	for ctx := range n.contextsPerRole[gr] {
		out = append(out, ctx)
	}
	sortContexts(out)
	return out
}

// PlayedRoles maps every game to the roles to which ctx applies.
func (n *Network) PlayedRoles(ctx Context) map[string][]int {
	out := make(map[string][]int, len(n.rolesPerContext[ctx]))
	for game, roles := range n.rolesPerContext[ctx] {
		list := make([]int, 0, len(roles))
		for role := range roles {
			list = append(list, role)
		}
		sort.Ints(list)
		out[game] = list
	}
	return out
}

// RolesPlayedIn is PlayedRoles flattened and sorted by game then role.
func (n *Network) RolesPlayedIn(ctx Context) []GameRole {
	var out []GameRole
	for game, roles := range n.rolesPerContext[ctx] {
		for role := range roles {
			out = append(out, GameRole{Game: game, Role: role})
		}
	}
	sortGameRoles(out)
	return out
}

// Contexts returns every coordination context, base and joint, sorted.
func (n *Network) Contexts() []Context {
	out := make([]Context, 0, len(n.rolesPerContext))
	for ctx := range n.rolesPerContext {
		out = append(out, ctx)
	}
	sortContexts(out)
	return out
}

func (n *Network) IsJoint(ctx Context) bool {
	_, ok := n.jointContexts[ctx]
	return ok
}

func sortGameRoles(roles []GameRole) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Game != roles[j].Game {
			return roles[i].Game < roles[j].Game
		}
		return roles[i].Role < roles[j].Role
	})
}
