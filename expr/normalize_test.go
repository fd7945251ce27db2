package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

func fieldEq(name string, n int64) expr.Expression {
	return expr.Predicate{
		LHS: expr.FieldExtractor{Name: name},
		Op:  op.Equal,
		RHS: expr.Data{Value: view.Int64(n)},
	}
}

// S4 — expression normalization: !(!(x == 1 && y == 2)) normalizes to
// Conjunction[Predicate(x==1), Predicate(y==2)].
func TestNormalizeDoubleNegation(t *testing.T) {
	inner := expr.Conjunction{Children: []expr.Expression{fieldEq("x", 1), fieldEq("y", 2)}}
	e := expr.Negation{Child: expr.Negation{Child: inner}}

	got := expr.Normalize(e)

	want := expr.Conjunction{Children: []expr.Expression{fieldEq("x", 1), fieldEq("y", 2)}}
	require.Equal(t, expr.Key(want), expr.Key(got))
}

// Invariant 1: normalize is idempotent.
func TestNormalizeIdempotent(t *testing.T) {
	e := expr.Negation{Child: expr.Disjunction{Children: []expr.Expression{
		fieldEq("x", 1), expr.Negation{Child: fieldEq("y", 2)}, fieldEq("x", 1),
	}}}
	once := expr.Normalize(e)
	twice := expr.Normalize(once)
	require.Equal(t, expr.Key(once), expr.Key(twice))
}

// Invariant 2: normalize(e) has no Negation node.
func TestNormalizeRemovesNegation(t *testing.T) {
	e := expr.Negation{Child: expr.Conjunction{Children: []expr.Expression{
		fieldEq("x", 1), expr.Negation{Child: fieldEq("y", 2)},
	}}}
	got := expr.Normalize(e)
	require.False(t, containsNegation(got))
}

func containsNegation(e expr.Expression) bool {
	switch n := e.(type) {
	case expr.Negation:
		return true
	case expr.Conjunction:
		for _, c := range n.Children {
			if containsNegation(c) {
				return true
			}
		}
	case expr.Disjunction:
		for _, c := range n.Children {
			if containsNegation(c) {
				return true
			}
		}
	}
	return false
}

func TestNormalizeDeduplicates(t *testing.T) {
	e := expr.Conjunction{Children: []expr.Expression{fieldEq("x", 1), fieldEq("x", 1), fieldEq("y", 2)}}
	got := expr.Normalize(e)
	conj, ok := got.(expr.Conjunction)
	require.True(t, ok)
	require.Len(t, conj.Children, 2)
}
