// Package op defines the relational operator vocabulary shared by the
// expression algebra, the value-index family, and the synopsis family
// (spec.md §3, RelOp).
package op

// RelOp is one of the relational operators the expression language
// supports.
type RelOp int

const (
	Equal RelOp = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	In
	NotIn
	Ni // "contains": rhs is a member/substring/subnet of lhs
	NotNi
	Match
	NotMatch
)

func (o RelOp) String() string {
	switch o {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case Less:
		return "<"
	case LessEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterEqual:
		return ">="
	case In:
		return "in"
	case NotIn:
		return "!in"
	case Ni:
		return "ni"
	case NotNi:
		return "!ni"
	case Match:
		return "~"
	case NotMatch:
		return "!~"
	default:
		return "?"
	}
}

// Flip returns the operator satisfying the semantic negation of o:
// flip(op)(a,b) == !op(a,b). Used by the denegator pass to push
// negations into predicates instead of wrapping them.
func Flip(o RelOp) RelOp {
	switch o {
	case Equal:
		return NotEqual
	case NotEqual:
		return Equal
	case Less:
		return GreaterEqual
	case LessEqual:
		return Greater
	case Greater:
		return LessEqual
	case GreaterEqual:
		return Less
	case In:
		return NotIn
	case NotIn:
		return In
	case Ni:
		return NotNi
	case NotNi:
		return Ni
	case Match:
		return NotMatch
	case NotMatch:
		return Match
	default:
		return o
	}
}

// Mirror returns the operator to use after swapping the LHS and RHS
// operands: mirror(op)(b,a) == op(a,b). Used by the aligner pass so
// extractors always end up on the left.
func Mirror(o RelOp) RelOp {
	switch o {
	case Less:
		return Greater
	case LessEqual:
		return GreaterEqual
	case Greater:
		return Less
	case GreaterEqual:
		return LessEqual
	case In:
		return Ni
	case NotIn:
		return NotNi
	case Ni:
		return In
	case NotNi:
		return NotIn
	default:
		return o
	}
}

// Negative reports whether o is one of the "negative" operator forms
// (!=, !in, !ni, !~), used by #field suffix matching (spec.md §4.5).
func (o RelOp) Negative() bool {
	switch o {
	case NotEqual, NotIn, NotNi, NotMatch:
		return true
	default:
		return false
	}
}

// Ordered reports whether o is one of the ordering comparisons
// (<, <=, >, >=), the set min-max synopses can answer.
func (o RelOp) Ordered() bool {
	switch o {
	case Less, LessEqual, Greater, GreaterEqual:
		return true
	default:
		return false
	}
}
