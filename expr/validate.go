package expr

import "github.com/telescan/telescan/xerrors"

// Validate checks each predicate's operand compatibility, failing with
// SyntaxError on mismatches such as an ordering operator between two
// extractors with no data operand at all (spec.md §4.4, §8 S4).
func Validate(e Expression) error {
	switch n := e.(type) {
	case Predicate:
		return validatePredicate(n)
	case Conjunction:
		return validateAll(n.Children)
	case Disjunction:
		return validateAll(n.Children)
	case Negation:
		return Validate(n.Child)
	case Const, Empty:
		return nil
	default:
		return xerrors.New(xerrors.SyntaxError, "validate: unknown expression node")
	}
}

func validateAll(children []Expression) error {
	for _, c := range children {
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicate(p Predicate) error {
	_, lhsData := p.LHS.(Data)
	_, rhsData := p.RHS.(Data)
	if !lhsData && !rhsData {
		return xerrors.Newf(xerrors.SyntaxError,
			"predicate %s %s %s has no data operand", p.LHS, p.Op, p.RHS)
	}
	if attr, ok := p.LHS.(AttributeExtractor); ok && attr.Attr == AttrField {
		if err := validateFieldOperand(p); err != nil {
			return err
		}
	}
	if attr, ok := p.RHS.(AttributeExtractor); ok && attr.Attr == AttrField {
		if err := validateFieldOperand(p); err != nil {
			return err
		}
	}
	return nil
}

// validateFieldOperand enforces the resolved Open Question from
// SPEC_FULL.md: #field requires a string RHS operand, promoted to a
// hard syntax_error rather than a silent warn-and-skip.
func validateFieldOperand(p Predicate) error {
	var other Operand
	if _, ok := p.LHS.(AttributeExtractor); ok {
		other = p.RHS
	} else {
		other = p.LHS
	}
	d, ok := other.(Data)
	if !ok {
		return xerrors.New(xerrors.SyntaxError, "#field must be compared against a string literal")
	}
	if d.Value.Kind() != "string" {
		return xerrors.New(xerrors.SyntaxError, "#field must be compared against a string literal")
	}
	return nil
}
