package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/expr/parser"
	"github.com/telescan/telescan/op"
)

func TestParseSimplePredicate(t *testing.T) {
	e, err := parser.Parse(`net.src_ip == 10.0.0.1`)
	require.NoError(t, err)
	p, ok := e.(expr.Predicate)
	require.True(t, ok)
	require.Equal(t, op.Equal, p.Op)
	fe, ok := p.LHS.(expr.FieldExtractor)
	require.True(t, ok)
	require.Equal(t, "net.src_ip", fe.Name)
}

func TestParseConjunctionAndNegation(t *testing.T) {
	e, err := parser.Parse(`!(x == 1 && y == 2)`)
	require.NoError(t, err)
	neg, ok := e.(expr.Negation)
	require.True(t, ok)
	conj, ok := neg.Child.(expr.Conjunction)
	require.True(t, ok)
	require.Len(t, conj.Children, 2)
}

func TestParseTypeAndAttribute(t *testing.T) {
	e, err := parser.Parse(`:addr == 10.0.0.0/8 || #type == "zeek.conn"`)
	require.NoError(t, err)
	disj, ok := e.(expr.Disjunction)
	require.True(t, ok)
	require.Len(t, disj.Children, 2)

	p0 := disj.Children[0].(expr.Predicate)
	_, ok = p0.LHS.(expr.TypeExtractor)
	require.True(t, ok)

	p1 := disj.Children[1].(expr.Predicate)
	attr, ok := p1.LHS.(expr.AttributeExtractor)
	require.True(t, ok)
	require.Equal(t, expr.AttrType, attr.Attr)
}
