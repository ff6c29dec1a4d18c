package games

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const conjunction = " & "

var ErrInvalidContext = errors.New("invalid context")

// PredicateTerm is one perception block of a context, rendered as pred(term).
type PredicateTerm struct {
	Predicate string
	Term      string
}

func (p PredicateTerm) String() string {
	return p.Predicate + "(" + p.Term + ")"
}

// Context is the canonical description of what an agent perceives before
// acting. The zero value is not a valid context.
type Context struct {
	canonical string
}

// ParseContext builds a context from a descriptor of the form
// "pred_1(term_1) & ... & pred_n(term_n)". Pairs are sorted so that the
// order in which they are written does not affect identity.
func ParseContext(desc string) (Context, error) {
	if strings.TrimSpace(desc) == "" {
		return Context{}, fmt.Errorf("%w: at least one predicate is required", ErrInvalidContext)
	}
	parts := strings.Split(desc, "&")
	pairs := make([]PredicateTerm, 0, len(parts))
	for _, part := range parts {
		pair, err := parsePredicateTerm(part)
		if err != nil {
			return Context{}, err
		}
		pairs = append(pairs, pair)
	}
	return newContext(pairs), nil
}

// MustParseContext is ParseContext for literals known to be well formed.
func MustParseContext(desc string) Context {
	ctx, err := ParseContext(desc)
	if err != nil {
		panic(err)
	}
	return ctx
}

// JoinContexts returns the context holding the pairs of both a and b.
func JoinContexts(a, b Context) Context {
	return newContext(append(a.Pairs(), b.Pairs()...))
}

func parsePredicateTerm(raw string) (PredicateTerm, error) {
	s := strings.TrimSpace(raw)
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return PredicateTerm{}, fmt.Errorf("%w: malformed predicate %q", ErrInvalidContext, s)
	}
	pred := strings.TrimSpace(strings.ReplaceAll(s[:open], `"`, ""))
	term := strings.TrimSpace(strings.ReplaceAll(s[open+1:len(s)-1], `"`, ""))
	if pred == "" {
		return PredicateTerm{}, fmt.Errorf("%w: empty predicate in %q", ErrInvalidContext, s)
	}
	if term == "" || strings.ContainsAny(term, "()") {
		return PredicateTerm{}, fmt.Errorf("%w: empty or malformed term in %q", ErrInvalidContext, s)
	}
	return PredicateTerm{Predicate: pred, Term: term}, nil
}

func newContext(pairs []PredicateTerm) Context {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Predicate != pairs[j].Predicate {
			return pairs[i].Predicate < pairs[j].Predicate
		}
		return pairs[i].Term < pairs[j].Term
	})
	rendered := make([]string, 0, len(pairs))
	for i, pair := range pairs {
		if i > 0 && pair == pairs[i-1] {
			continue
		}
		rendered = append(rendered, pair.String())
	}
	return Context{canonical: strings.Join(rendered, conjunction)}
}

func (c Context) String() string {
	return c.canonical
}

func (c Context) IsZero() bool {
	return c.canonical == ""
}

// Pairs returns the (predicate, term) pairs in canonical order.
func (c Context) Pairs() []PredicateTerm {
	if c.canonical == "" {
		return nil
	}
	parts := strings.Split(c.canonical, conjunction)
	pairs := make([]PredicateTerm, 0, len(parts))
	for _, part := range parts {
		open := strings.Index(part, "(")
		pairs = append(pairs, PredicateTerm{Predicate: part[:open], Term: part[open+1 : len(part)-1]})
	}
	return pairs
}

func sortContexts(contexts []Context) {
	sort.Slice(contexts, func(i, j int) bool {
		return contexts[i].canonical < contexts[j].canonical
	})
}
