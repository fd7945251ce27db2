// Package xerrors defines the error kinds from the error handling design
// (spec.md §7) and the marking/matching discipline used to propagate them.
package xerrors

import (
	"github.com/cockroachdb/errors"
)

// Kind is a sentinel marker attached to errors via errors.Mark so callers
// can classify a failure without inspecting its message.
type Kind struct{ name string }

func (k Kind) Error() string { return k.name }

var (
	// TypeClash: predicate operand type incompatible with the indexed
	// column type. Recovered locally as "no match from this column."
	TypeClash = Kind{"type_clash"}
	// UnsupportedOperator: operator not defined for the column type (e.g.
	// "<" on an address). Same local recovery as TypeClash.
	UnsupportedOperator = Kind{"unsupported_operator"}
	// SyntaxError: malformed expression at parse or validate time.
	// Surfaced to the caller; the query is never admitted.
	SyntaxError = Kind{"syntax_error"}
	// FormatError: on-disk data failed a version check or structural
	// validation. The partition is skipped with a warning.
	FormatError = Kind{"format_error"}
	// FilesystemError: read/write failure. Write failures during persist
	// are fatal; read failures during query loading skip the partition.
	FilesystemError = Kind{"filesystem_error"}
	// LogicError: a precondition was violated (e.g. unknown partition).
	LogicError = Kind{"logic_error"}
	// InvalidQuery: a model/taxonomy mismatch at resolve time.
	InvalidQuery = Kind{"invalid_query"}
)

// Mark attaches kind to err so that Is(err, kind) reports true. Passing a
// nil err returns nil.
func Mark(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// New creates a fresh error already marked with kind.
func New(kind Kind, msg string) error {
	return errors.Mark(errors.New(msg), kind)
}

// Newf creates a fresh formatted error already marked with kind.
func Newf(kind Kind, format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), kind)
}

// Is reports whether err (or anything it wraps) is marked with kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// Wrap annotates err with msg while preserving any Kind mark already
// attached to it.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
