package expr

import (
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/xerrors"
)

// Tailor replaces each FieldExtractor(name), TypeExtractor(t), and
// AttributeExtractor operand with one or more DataExtractor predicates,
// ORed together when multiple columns of the record type match
// (spec.md §4.4). #type and #field refer to partition metadata rather
// than a column, so they resolve immediately to a Const. Errors
// (no_such_field) abort the whole call.
func Tailor(e Expression, layout schema.Layout) (Expression, error) {
	switch n := e.(type) {
	case Predicate:
		return tailorPredicate(n, layout)
	case Conjunction:
		children, err := tailorChildren(n.Children, layout)
		if err != nil {
			return nil, err
		}
		return Conjunction{Children: children}, nil
	case Disjunction:
		children, err := tailorChildren(n.Children, layout)
		if err != nil {
			return nil, err
		}
		return Disjunction{Children: children}, nil
	case Negation:
		child, err := Tailor(n.Child, layout)
		if err != nil {
			return nil, err
		}
		return Negation{Child: child}, nil
	case Empty, Const:
		return n, nil
	default:
		return nil, xerrors.New(xerrors.LogicError, "tailor: unknown expression node")
	}
}

func tailorChildren(children []Expression, layout schema.Layout) ([]Expression, error) {
	out := make([]Expression, 0, len(children))
	for _, c := range children {
		t, err := Tailor(c, layout)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func tailorPredicate(p Predicate, layout schema.Layout) (Expression, error) {
	if side, ext, ok := findExtractorSide(p); ok {
		switch x := ext.(type) {
		case AttributeExtractor:
			switch x.Attr {
			case AttrType:
				return Const{Value: evalOp(p.Op, layout.Name == dataString(p, side))}, nil
			case AttrField:
				suffix, ok := dataStringValue(p, side)
				if !ok {
					return nil, xerrors.New(xerrors.SyntaxError, "#field requires a string operand")
				}
				matched := len(layout.FieldsBySuffix(suffix)) > 0
				return Const{Value: evalNegatable(p.Op, matched)}, nil
			case AttrTimestamp:
				fields := layout.FieldsByAttribute("timestamp")
				return fanOut(p, side, layout.Name, fields)
			}
		case FieldExtractor:
			f, ok := layout.FieldByName(x.Name)
			if !ok {
				return nil, xerrors.Newf(xerrors.InvalidQuery, "no such field: %s", x.Name)
			}
			return fanOut(p, side, layout.Name, []schema.Field{f})
		case TypeExtractor:
			fields := layout.FieldsByType(x.Type)
			if len(fields) == 0 {
				return nil, xerrors.Newf(xerrors.InvalidQuery, "no field of type %s", x.Type)
			}
			return fanOut(p, side, layout.Name, fields)
		}
	}
	return p, nil
}

// findExtractorSide reports which operand (if any) is a symbolic
// extractor that tailor must resolve against the layout.
func findExtractorSide(p Predicate) (side int, ext Operand, ok bool) {
	switch p.LHS.(type) {
	case FieldExtractor, TypeExtractor, AttributeExtractor:
		return 0, p.LHS, true
	}
	switch p.RHS.(type) {
	case FieldExtractor, TypeExtractor, AttributeExtractor:
		return 1, p.RHS, true
	}
	return 0, nil, false
}

func fanOut(p Predicate, side int, layoutName string, fields []schema.Field) (Expression, error) {
	if len(fields) == 0 {
		return Const{Value: false}, nil
	}
	clauses := make([]Expression, 0, len(fields))
	for _, f := range fields {
		de := DataExtractor{Type: f.Type, Offset: f.Offset, Name: f.QualifiedName(layoutName)}
		np := p
		if side == 0 {
			np.LHS = de
		} else {
			np.RHS = de
		}
		clauses = append(clauses, np)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return Disjunction{Children: clauses}, nil
}

func dataString(p Predicate, extractorSide int) string {
	s, _ := dataStringValue(p, extractorSide)
	return s
}

func dataStringValue(p Predicate, extractorSide int) (string, bool) {
	var o Operand
	if extractorSide == 0 {
		o = p.RHS
	} else {
		o = p.LHS
	}
	d, ok := o.(Data)
	if !ok {
		return "", false
	}
	return d.Value.String(), true
}

func evalOp(o op.RelOp, equal bool) bool {
	switch o {
	case op.Equal:
		return equal
	case op.NotEqual:
		return !equal
	default:
		return false
	}
}

func evalNegatable(o op.RelOp, matched bool) bool {
	if o.Negative() {
		return !matched
	}
	return matched
}
