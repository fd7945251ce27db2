package expr

import "github.com/telescan/telescan/xerrors"

// Resolved is one leaf of a tailored, normalized expression: either a
// concrete column predicate or a Const produced by tailor() for
// partition-metadata operands (#type, #field). Path is the AST offset
// (spec.md GLOSSARY "Offset (in AST)"): the root is [0], [0,k] is the
// k-th child of the root.
type Resolved struct {
	Path      []int
	Predicate Predicate
	IsConst   bool
	Const     bool
}

// Resolve flattens a tailored expression into the list of (path,
// predicate) pairs the per-partition evaluator consumes (spec.md §4.4).
// It requires every predicate's LHS to already be a DataExtractor (the
// tailor() postcondition); any other shape is a type error that aborts
// and returns an empty list.
func Resolve(e Expression) ([]Resolved, error) {
	var out []Resolved
	if err := resolveInto(e, []int{0}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveInto(e Expression, path []int, out *[]Resolved) error {
	switch n := e.(type) {
	case Predicate:
		if _, ok := n.LHS.(DataExtractor); !ok {
			return xerrors.New(xerrors.InvalidQuery, "resolve: predicate LHS is not a concrete column")
		}
		*out = append(*out, Resolved{Path: append([]int(nil), path...), Predicate: n})
		return nil
	case Const:
		*out = append(*out, Resolved{Path: append([]int(nil), path...), IsConst: true, Const: n.Value})
		return nil
	case Empty:
		return nil
	case Conjunction:
		return resolveChildren(n.Children, path, out)
	case Disjunction:
		return resolveChildren(n.Children, path, out)
	case Negation:
		return xerrors.New(xerrors.InvalidQuery, "resolve: unexpected negation (normalize first)")
	default:
		return xerrors.New(xerrors.InvalidQuery, "resolve: unknown expression node")
	}
}

func resolveChildren(children []Expression, path []int, out *[]Resolved) error {
	for i, c := range children {
		childPath := append(append([]int(nil), path...), i)
		if err := resolveInto(c, childPath, out); err != nil {
			return err
		}
	}
	return nil
}
