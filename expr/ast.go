// Package expr implements the expression algebra: a predicate tree with
// normalization and type-resolution passes (spec.md §4.4).
package expr

import (
	"fmt"

	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

// Attr is one of the metadata attribute extractors (#timestamp, #type,
// #field).
type Attr int

const (
	AttrTimestamp Attr = iota
	AttrType
	AttrField
)

func (a Attr) String() string {
	switch a {
	case AttrTimestamp:
		return "#timestamp"
	case AttrType:
		return "#type"
	case AttrField:
		return "#field"
	default:
		return "#?"
	}
}

// Operand is one side of a Predicate.
type Operand interface {
	isOperand()
	String() string
}

// Data is a literal value operand.
type Data struct{ Value view.Value }

func (Data) isOperand()        {}
func (d Data) String() string { return d.Value.String() }

// FieldExtractor names a field by its dotted path, e.g. "net.src_ip".
type FieldExtractor struct{ Name string }

func (FieldExtractor) isOperand()        {}
func (f FieldExtractor) String() string { return f.Name }

// TypeExtractor selects every column of a given type, e.g. ":addr".
type TypeExtractor struct{ Type string }

func (TypeExtractor) isOperand()        {}
func (t TypeExtractor) String() string { return ":" + t.Type }

// AttributeExtractor selects columns (or partition metadata) by
// attribute: #timestamp, #type, #field.
type AttributeExtractor struct{ Attr Attr }

func (AttributeExtractor) isOperand()        {}
func (a AttributeExtractor) String() string { return a.Attr.String() }

// DataExtractor identifies one concrete column by its offset within a
// tailored record layout. Every predicate's LHS is a DataExtractor after
// tailor() runs. Name carries the field's dotted path so the meta-index
// can look up the matching per-field synopsis by qualified name.
type DataExtractor struct {
	Type   string
	Offset int
	Name   string
}

func (DataExtractor) isOperand()        {}
func (d DataExtractor) String() string { return fmt.Sprintf("@%d:%s", d.Offset, d.Type) }

func isExtractor(o Operand) bool {
	switch o.(type) {
	case FieldExtractor, TypeExtractor, AttributeExtractor, DataExtractor:
		return true
	default:
		return false
	}
}

// Expression is the recursive sum type Predicate | Conjunction |
// Disjunction | Negation | Empty | Const.
type Expression interface {
	isExpression()
}

// Predicate is a single comparison: lhs op rhs.
type Predicate struct {
	LHS Operand
	Op  op.RelOp
	RHS Operand
}

func (Predicate) isExpression() {}

// Conjunction is a logical AND of its children.
type Conjunction struct{ Children []Expression }

func (Conjunction) isExpression() {}

// Disjunction is a logical OR of its children.
type Disjunction struct{ Children []Expression }

func (Disjunction) isExpression() {}

// Negation is a logical NOT of its child.
type Negation struct{ Child Expression }

func (Negation) isExpression() {}

// Empty matches nothing; it is the neutral "no expression" value.
type Empty struct{}

func (Empty) isExpression() {}

// Const is a compile-time-resolved boolean, produced by tailor() when an
// operand refers to partition-level metadata (#type, #field) rather than
// a per-row column.
type Const struct{ Value bool }

func (Const) isExpression() {}
