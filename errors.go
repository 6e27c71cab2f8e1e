package forge

import (
	"fmt"
	"strings"
)

// ErrorKind classifies structural model errors. these fail fast during
// parse/validate, unlike *CellError values which travel through cells.
type ErrorKind int

const (
	// KindSyntax indicates malformed formula or source text. carries the
	// character position within the formula where lexing or parsing stopped.
	KindSyntax ErrorKind = 1

	// KindUnresolvedReference indicates a reference to an unknown table,
	// column, or scalar.
	KindUnresolvedReference ErrorKind = 2

	// KindCircularDependency indicates a reference cycle. Cycle holds the
	// node path in order, first node repeated at the end.
	KindCircularDependency ErrorKind = 3

	// KindTypeMismatch indicates a non-homogeneous literal array or an
	// operator applied to incompatible types at load time.
	KindTypeMismatch ErrorKind = 4

	// KindShape indicates a row-count mismatch between columns of a table
	// or between non-scalar operands.
	KindShape ErrorKind = 5

	// KindTranslation indicates a construct the workbook translator cannot
	// represent.
	KindTranslation ErrorKind = 6

	// KindInternal means some invariant expected by the engine has been
	// broken.
	KindInternal ErrorKind = 7
)

func (k ErrorKind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindUnresolvedReference:
		return "unresolved reference"
	case KindCircularDependency:
		return "circular dependency"
	case KindTypeMismatch:
		return "type mismatch"
	case KindShape:
		return "shape"
	case KindTranslation:
		return "translation"
	default:
		return "internal"
	}
}

// ModelError represents errors at the model level (not formula cell
// errors). Node names the offending column or scalar where known, Pos the
// character position for syntax errors, Cycle the full path for
// circular-dependency errors.
type ModelError struct {
	Kind    ErrorKind
	Message string
	Node    string
	Pos     int
	Cycle   []string
}

func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Node != "" {
		fmt.Fprintf(&b, " in %s", e.Node)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Cycle, " -> "))
	}
	return b.String()
}

// NewModelError creates a new structural error
func NewModelError(kind ErrorKind, message string) *ModelError {
	return &ModelError{
		Kind:    kind,
		Message: message,
	}
}

// newSyntaxError creates a syntax error carrying the formula position
func newSyntaxError(pos int, message string) *ModelError {
	return &ModelError{
		Kind:    KindSyntax,
		Message: message,
		Pos:     pos,
	}
}

// errorAt returns a copy of the error annotated with the node it was
// detected in
func errorAt(err *ModelError, node string) *ModelError {
	if err.Node != "" {
		return err
	}
	annotated := *err
	annotated.Node = node
	return &annotated
}
