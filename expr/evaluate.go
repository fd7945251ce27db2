package expr

import (
	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/xerrors"
)

// Lookup answers one predicate against a single partition's column
// index, returning a bitmap over the partition's ID range.
type Lookup func(p Predicate) (*bitmap.Bitmap, error)

// Evaluate composes Lookup results according to the AST structure of a
// tailored, normalized expression: "evaluate each predicate via its
// value index; compose bitmaps according to the AST structure" (spec.md
// §4.4 per-partition evaluation). total is the partition's row count,
// used to answer Const and Empty without a column lookup. e must
// already be free of Negation (Normalize's postcondition) and every
// Predicate's LHS must be a DataExtractor (Tailor's postcondition).
func Evaluate(e Expression, total uint64, lookup Lookup) (*bitmap.Bitmap, error) {
	switch n := e.(type) {
	case Predicate:
		return lookup(n)
	case Conjunction:
		return evaluateFold(n.Children, total, lookup, bitmap.And)
	case Disjunction:
		return evaluateFold(n.Children, total, lookup, bitmap.Or)
	case Const:
		return bitmap.Repeat(n.Value, total), nil
	case Empty:
		return bitmap.Repeat(false, total), nil
	case Negation:
		return nil, xerrors.New(xerrors.LogicError, "evaluate: unexpected negation (normalize first)")
	default:
		return nil, xerrors.New(xerrors.LogicError, "evaluate: unknown expression node")
	}
}

func evaluateFold(children []Expression, total uint64, lookup Lookup, combine func(a, b *bitmap.Bitmap) *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	if len(children) == 0 {
		return bitmap.Repeat(false, total), nil
	}
	acc, err := Evaluate(children[0], total, lookup)
	if err != nil {
		return nil, err
	}
	for _, c := range children[1:] {
		bm, err := Evaluate(c, total, lookup)
		if err != nil {
			return nil, err
		}
		acc = combine(acc, bm)
	}
	return acc, nil
}
