package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

func dataExtractorEq(name string, n int64) expr.Predicate {
	return expr.Predicate{
		LHS: expr.DataExtractor{Type: "count", Name: name},
		Op:  op.Equal,
		RHS: expr.Data{Value: view.Int64(n)},
	}
}

func bitsLookup(bits map[string]*bitmap.Bitmap) expr.Lookup {
	return func(p expr.Predicate) (*bitmap.Bitmap, error) {
		de := p.LHS.(expr.DataExtractor)
		bm, ok := bits[de.Name]
		if !ok {
			return nil, xerrors.New(xerrors.LogicError, "no such column in fixture")
		}
		return bm, nil
	}
}

func bm(positions ...uint64) *bitmap.Bitmap {
	b := bitmap.New()
	b.Append(false, 4)
	for _, p := range positions {
		b.Set(p, true)
	}
	return b
}

// A single predicate evaluates by calling lookup directly.
func TestEvaluatePredicateCallsLookup(t *testing.T) {
	want := bm(0, 2)
	lookup := bitsLookup(map[string]*bitmap.Bitmap{"x": want})

	got, err := expr.Evaluate(dataExtractorEq("x", 1), 4, lookup)
	require.NoError(t, err)
	require.Equal(t, want.ToSortedSlice(), got.ToSortedSlice())
}

// A conjunction intersects its children's bitmaps.
func TestEvaluateConjunctionIntersects(t *testing.T) {
	lookup := bitsLookup(map[string]*bitmap.Bitmap{
		"x": bm(0, 1, 2),
		"y": bm(1, 2, 3),
	})
	e := expr.Conjunction{Children: []expr.Expression{
		dataExtractorEq("x", 1),
		dataExtractorEq("y", 2),
	}}

	got, err := expr.Evaluate(e, 4, lookup)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, got.ToSortedSlice())
}

// A disjunction unions its children's bitmaps.
func TestEvaluateDisjunctionUnions(t *testing.T) {
	lookup := bitsLookup(map[string]*bitmap.Bitmap{
		"x": bm(0),
		"y": bm(3),
	})
	e := expr.Disjunction{Children: []expr.Expression{
		dataExtractorEq("x", 1),
		dataExtractorEq("y", 2),
	}}

	got, err := expr.Evaluate(e, 4, lookup)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 3}, got.ToSortedSlice())
}

// Const(true) and Empty answer without consulting lookup at all.
func TestEvaluateConstAndEmptyBypassLookup(t *testing.T) {
	lookup := func(p expr.Predicate) (*bitmap.Bitmap, error) {
		t.Fatal("lookup should not be called for Const/Empty")
		return nil, nil
	}

	got, err := expr.Evaluate(expr.Const{Value: true}, 3, lookup)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2}, got.ToSortedSlice())

	got, err = expr.Evaluate(expr.Empty{}, 3, lookup)
	require.NoError(t, err)
	require.Empty(t, got.ToSortedSlice())
}

// A Negation node reaching Evaluate is a programming error: normalize
// must run first.
func TestEvaluateRejectsNegation(t *testing.T) {
	lookup := bitsLookup(map[string]*bitmap.Bitmap{"x": bm(0)})
	_, err := expr.Evaluate(expr.Negation{Child: dataExtractorEq("x", 1)}, 4, lookup)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.LogicError))
}

// A lookup failure on one child propagates out of a Conjunction.
func TestEvaluatePropagatesLookupError(t *testing.T) {
	e := expr.Conjunction{Children: []expr.Expression{
		dataExtractorEq("missing", 1),
	}}
	_, err := expr.Evaluate(e, 4, bitsLookup(nil))
	require.Error(t, err)
}
