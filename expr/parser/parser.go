// Package parser implements the text query syntax of spec.md §6: boolean
// combinations of predicates over fields, types (:addr), and metadata
// attributes (#timestamp, #type, #field), compiled into an expr.Expression.
package parser

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Timestamp", Pattern: `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z`},
	{Name: "Duration", Pattern: `[0-9]+(\.[0-9]+)?(ns|us|ms|s|min|h|d|w)`},
	{Name: "CIDR", Pattern: `(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}|[0-9a-fA-F:]*:[0-9a-fA-F:]*)/\d{1,3}`},
	{Name: "Port", Pattern: `\d{1,5}/(tcp|udp|icmp6|icmp|sctp)`},
	{Name: "IPv6", Pattern: `[0-9a-fA-F:]*::[0-9a-fA-F:]*|[0-9a-fA-F]+(:[0-9a-fA-F]+){2,7}`},
	{Name: "IPv4", Pattern: `\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`},
	{Name: "Real", Pattern: `[0-9]+\.[0-9]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Attr", Pattern: `#[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "TypeTag", Pattern: `:[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|<=|>=|!in\b|!ni\b|!~|<|>|~|in\b|ni\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Punct", Pattern: `&&|\|\||[(){}\[\],!]`},
})

type queryAST struct {
	Disjunction *disjunctionAST `@@`
}

type disjunctionAST struct {
	Conjunctions []*conjunctionAST `@@ ("||" @@)*`
}

type conjunctionAST struct {
	Unaries []*unaryAST `@@ ("&&" @@)*`
}

type unaryAST struct {
	Negations int     `@"!"*`
	Atom      *atomAST `@@`
}

type atomAST struct {
	Sub       *disjunctionAST `"(" @@ ")"`
	Predicate *predicateAST   `| @@`
}

type predicateAST struct {
	LHS *operandAST `@@`
	Op  string      `@Op`
	RHS *operandAST `@@`
}

type operandAST struct {
	Attr  *string  `  @Attr`
	Type  *string  `| @TypeTag`
	Data  *dataAST `| @@`
	Field *string  `| @Ident`
}

type dataAST struct {
	List      *listAST `  @@`
	Subnet    *string  `| @CIDR`
	Port      *string  `| @Port`
	Timestamp *string  `| @Timestamp`
	Duration  *string  `| @Duration`
	IPv6      *string  `| @IPv6`
	IPv4      *string  `| @IPv4`
	Real      *float64 `| @Real`
	Int       *int64   `| @Int`
	True      *bool    `| @"true"`
	False     *bool    `| @"false"`
	Str       *string  `| @String`
}

type listAST struct {
	Open  string     `"["`
	Items []*dataAST `( @@ ("," @@)* )?`
	Close string     `"]"`
}

var queryParser = participle.MustBuild[queryAST](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse compiles a text query into an un-tailored, un-normalized
// expression tree. Callers run expr.Tailor, expr.Normalize, and
// expr.Validate on the result before evaluating it.
func Parse(query string) (expr.Expression, error) {
	ast, err := queryParser.ParseString("", query)
	if err != nil {
		return nil, err
	}
	return toDisjunction(ast.Disjunction)
}

func toDisjunction(d *disjunctionAST) (expr.Expression, error) {
	children := make([]expr.Expression, 0, len(d.Conjunctions))
	for _, c := range d.Conjunctions {
		e, err := toConjunction(c)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return expr.Disjunction{Children: children}, nil
}

func toConjunction(c *conjunctionAST) (expr.Expression, error) {
	children := make([]expr.Expression, 0, len(c.Unaries))
	for _, u := range c.Unaries {
		e, err := toUnary(u)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return expr.Conjunction{Children: children}, nil
}

func toUnary(u *unaryAST) (expr.Expression, error) {
	var e expr.Expression
	var err error
	switch {
	case u.Atom.Sub != nil:
		e, err = toDisjunction(u.Atom.Sub)
	case u.Atom.Predicate != nil:
		e, err = toPredicate(u.Atom.Predicate)
	default:
		return nil, fmt.Errorf("parser: empty atom")
	}
	if err != nil {
		return nil, err
	}
	if u.Negations%2 == 1 {
		e = expr.Negation{Child: e}
	}
	return e, nil
}

func toPredicate(p *predicateAST) (expr.Expression, error) {
	lhs, err := toOperand(p.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := toOperand(p.RHS)
	if err != nil {
		return nil, err
	}
	relOp, err := parseRelOp(p.Op)
	if err != nil {
		return nil, err
	}
	return expr.Predicate{LHS: lhs, Op: relOp, RHS: rhs}, nil
}

func toOperand(o *operandAST) (expr.Operand, error) {
	switch {
	case o.Attr != nil:
		return toAttribute(*o.Attr)
	case o.Type != nil:
		return expr.TypeExtractor{Type: strings.TrimPrefix(*o.Type, ":")}, nil
	case o.Field != nil:
		return expr.FieldExtractor{Name: *o.Field}, nil
	case o.Data != nil:
		v, err := toData(o.Data)
		if err != nil {
			return nil, err
		}
		return expr.Data{Value: v}, nil
	default:
		return nil, fmt.Errorf("parser: empty operand")
	}
}

func toAttribute(raw string) (expr.Operand, error) {
	switch strings.TrimPrefix(raw, "#") {
	case "timestamp":
		return expr.AttributeExtractor{Attr: expr.AttrTimestamp}, nil
	case "type":
		return expr.AttributeExtractor{Attr: expr.AttrType}, nil
	case "field":
		return expr.AttributeExtractor{Attr: expr.AttrField}, nil
	default:
		return nil, fmt.Errorf("parser: unknown attribute %q", raw)
	}
}

func toData(d *dataAST) (view.Value, error) {
	switch {
	case d.List != nil:
		items := make(view.List, 0, len(d.List.Items))
		for _, it := range d.List.Items {
			v, err := toData(it)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case d.Subnet != nil:
		_, ipnet, err := net.ParseCIDR(*d.Subnet)
		if err != nil {
			return nil, fmt.Errorf("parser: invalid subnet %q: %w", *d.Subnet, err)
		}
		return view.SubnetFromIPNet(ipnet), nil
	case d.Port != nil:
		return parsePort(*d.Port)
	case d.Timestamp != nil:
		t, err := time.Parse(time.RFC3339Nano, *d.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parser: invalid timestamp %q: %w", *d.Timestamp, err)
		}
		return view.Timestamp(t), nil
	case d.Duration != nil:
		dur, err := parseVastDuration(*d.Duration)
		if err != nil {
			return nil, err
		}
		return view.Duration(dur), nil
	case d.IPv6 != nil:
		ip := net.ParseIP(*d.IPv6)
		if ip == nil {
			return nil, fmt.Errorf("parser: invalid address %q", *d.IPv6)
		}
		return view.AddressFromNetIP(ip), nil
	case d.IPv4 != nil:
		ip := net.ParseIP(*d.IPv4)
		if ip == nil {
			return nil, fmt.Errorf("parser: invalid address %q", *d.IPv4)
		}
		return view.AddressFromNetIP(ip), nil
	case d.Real != nil:
		return view.Real(*d.Real), nil
	case d.Int != nil:
		return view.Int64(*d.Int), nil
	case d.True != nil:
		return view.Bool(true), nil
	case d.False != nil:
		return view.Bool(false), nil
	case d.Str != nil:
		unquoted, err := strconv.Unquote(*d.Str)
		if err != nil {
			unquoted = strings.Trim(*d.Str, `"`)
		}
		return view.String_(unquoted), nil
	default:
		return nil, fmt.Errorf("parser: empty literal")
	}
}

func parsePort(raw string) (view.Port, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return view.Port{}, fmt.Errorf("parser: invalid port %q", raw)
	}
	n, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return view.Port{}, fmt.Errorf("parser: invalid port %q: %w", raw, err)
	}
	return view.Port{Number: uint16(n), Proto: parts[1]}, nil
}

// parseVastDuration accepts the suffixes spec.md §6 lists (ns, us, ms, s,
// min, h, d, w); the stdlib parser only understands up to "h".
func parseVastDuration(raw string) (time.Duration, error) {
	switch {
	case strings.HasSuffix(raw, "min"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "min"), 64)
		return time.Duration(n * float64(time.Minute)), err
	case strings.HasSuffix(raw, "d"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "d"), 64)
		return time.Duration(n * 24 * float64(time.Hour)), err
	case strings.HasSuffix(raw, "w"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "w"), 64)
		return time.Duration(n * 7 * 24 * float64(time.Hour)), err
	default:
		return time.ParseDuration(raw)
	}
}

func parseRelOp(s string) (op.RelOp, error) {
	switch s {
	case "==":
		return op.Equal, nil
	case "!=":
		return op.NotEqual, nil
	case "<":
		return op.Less, nil
	case "<=":
		return op.LessEqual, nil
	case ">":
		return op.Greater, nil
	case ">=":
		return op.GreaterEqual, nil
	case "in":
		return op.In, nil
	case "!in":
		return op.NotIn, nil
	case "ni":
		return op.Ni, nil
	case "!ni":
		return op.NotNi, nil
	case "~":
		return op.Match, nil
	case "!~":
		return op.NotMatch, nil
	default:
		return 0, fmt.Errorf("parser: unknown operator %q", s)
	}
}
