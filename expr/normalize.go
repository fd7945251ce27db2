package expr

import (
	"fmt"

	"github.com/telescan/telescan/op"
)

// Normalize applies the hoister, aligner, denegator, and deduplicator
// passes in the order spec.md §4.4 prescribes, finishing with a second
// hoister pass because deduplication can leave a unary AND/OR (invariant
// 1: normalize is idempotent; invariant 2: no Negation node survives).
func Normalize(e Expression) Expression {
	e = hoist(e)
	e = align(e)
	e = denegate(e)
	e = dedup(e)
	e = hoist(e)
	return e
}

func hoist(e Expression) Expression {
	switch n := e.(type) {
	case Conjunction:
		children := hoistChildren(n.Children)
		if len(children) == 1 {
			return children[0]
		}
		return Conjunction{Children: children}
	case Disjunction:
		children := hoistChildren(n.Children)
		if len(children) == 1 {
			return children[0]
		}
		return Disjunction{Children: children}
	case Negation:
		return Negation{Child: hoist(n.Child)}
	default:
		return e
	}
}

func hoistChildren(children []Expression) []Expression {
	out := make([]Expression, 0, len(children))
	for _, c := range children {
		out = append(out, hoist(c))
	}
	return out
}

func align(e Expression) Expression {
	switch n := e.(type) {
	case Predicate:
		if _, lhsData := n.LHS.(Data); lhsData && isExtractor(n.RHS) {
			return Predicate{LHS: n.RHS, Op: op.Mirror(n.Op), RHS: n.LHS}
		}
		return n
	case Conjunction:
		return Conjunction{Children: alignChildren(n.Children)}
	case Disjunction:
		return Disjunction{Children: alignChildren(n.Children)}
	case Negation:
		return Negation{Child: align(n.Child)}
	default:
		return e
	}
}

func alignChildren(children []Expression) []Expression {
	out := make([]Expression, 0, len(children))
	for _, c := range children {
		out = append(out, align(c))
	}
	return out
}

// denegate pushes negations down to the predicate level, flipping
// operators, and cancels double negation. After this pass no Negation
// node remains anywhere in the tree.
func denegate(e Expression) Expression {
	switch n := e.(type) {
	case Negation:
		switch child := n.Child.(type) {
		case Predicate:
			return Predicate{LHS: child.LHS, Op: op.Flip(child.Op), RHS: child.RHS}
		case Negation:
			return denegate(child.Child)
		case Conjunction:
			negated := make([]Expression, len(child.Children))
			for i, c := range child.Children {
				negated[i] = Negation{Child: c}
			}
			return denegate(Disjunction{Children: negated})
		case Disjunction:
			negated := make([]Expression, len(child.Children))
			for i, c := range child.Children {
				negated[i] = Negation{Child: c}
			}
			return denegate(Conjunction{Children: negated})
		case Const:
			return Const{Value: !child.Value}
		case Empty:
			return Empty{}
		default:
			return n
		}
	case Conjunction:
		return Conjunction{Children: denegateChildren(n.Children)}
	case Disjunction:
		return Disjunction{Children: denegateChildren(n.Children)}
	default:
		return e
	}
}

func denegateChildren(children []Expression) []Expression {
	out := make([]Expression, 0, len(children))
	for _, c := range children {
		out = append(out, denegate(c))
	}
	return out
}

// dedup removes duplicate predicates from each AND/OR child set,
// comparing children by their canonical string form.
func dedup(e Expression) Expression {
	switch n := e.(type) {
	case Conjunction:
		return Conjunction{Children: dedupChildren(n.Children)}
	case Disjunction:
		return Disjunction{Children: dedupChildren(n.Children)}
	case Negation:
		return Negation{Child: dedup(n.Child)}
	default:
		return e
	}
}

func dedupChildren(children []Expression) []Expression {
	seen := make(map[string]bool, len(children))
	out := make([]Expression, 0, len(children))
	for _, c := range children {
		c = dedup(c)
		k := Key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// Key returns a canonical string for e, used for structural-equality
// comparisons (deduplication, tests).
func Key(e Expression) string {
	switch n := e.(type) {
	case Predicate:
		return fmt.Sprintf("P(%s %s %s)", n.LHS.String(), n.Op.String(), n.RHS.String())
	case Conjunction:
		return joinKeys("AND", n.Children)
	case Disjunction:
		return joinKeys("OR", n.Children)
	case Negation:
		return "NOT(" + Key(n.Child) + ")"
	case Const:
		return fmt.Sprintf("CONST(%v)", n.Value)
	case Empty:
		return "EMPTY"
	default:
		return "?"
	}
}

func joinKeys(label string, children []Expression) string {
	s := label + "["
	for i, c := range children {
		if i > 0 {
			s += ","
		}
		s += Key(c)
	}
	return s + "]"
}
