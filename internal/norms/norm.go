package norms

import (
	"fmt"
	"sync/atomic"

	"ensm/internal/games"
)

// IDGenerator hands out the display identifiers of the norms built by one
// setup phase.
type IDGenerator struct {
	last atomic.Uint64
}

func (g *IDGenerator) Next() uint64 {
	return g.last.Add(1)
}

// Key is the identity of a norm.
type Key struct {
	Context games.Context
	Action  string
}

// Norm prescribes an action in a context, optionally backed by a sanction.
//
// Two norms are the same norm when their context and action match. The
// identifier and the sanction take no part in equality, so sanctioned
// variants of one prescription collapse onto a single Key. This is what
// deduplicates a norm space; keep it in mind before keying anything else
// by Norm.
type Norm struct {
	id       uint64
	context  games.Context
	action   string
	sanction *games.Sanction
}

func New(ids *IDGenerator, ctx games.Context, action string, sanction *games.Sanction) Norm {
	n := Norm{context: ctx, action: action}
	if ids != nil {
		n.id = ids.Next()
	}
	if sanction != nil {
		s := *sanction
		n.sanction = &s
	}
	return n
}

// None is the placeholder norm of an unregulated context.
func None(ctx games.Context) Norm {
	return Norm{context: ctx}
}

func (n Norm) ID() uint64 {
	return n.id
}

func (n Norm) Context() games.Context {
	return n.context
}

func (n Norm) Action() string {
	return n.action
}

func (n Norm) Sanction() (games.Sanction, bool) {
	if n.sanction == nil {
		return games.Sanction{}, false
	}
	return *n.sanction, true
}

func (n Norm) IsNone() bool {
	return n.action == ""
}

func (n Norm) Key() Key {
	return Key{Context: n.context, Action: n.action}
}

func (n Norm) Equal(other Norm) bool {
	return n.Key() == other.Key()
}

func (n Norm) String() string {
	if n.IsNone() {
		return "none"
	}
	if n.sanction != nil {
		return fmt.Sprintf("%d: (%s) -> %s [%s]", n.id, n.context, n.action, n.sanction.Name)
	}
	return fmt.Sprintf("%d: (%s) -> %s", n.id, n.context, n.action)
}
