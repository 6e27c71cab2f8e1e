package forge

import (
	"fmt"
)

// Column is one named array of a table. exactly one of the literal and
// formula forms is populated at load time:
//   - literal: Data holds the typed array, Formula is empty
//   - formula: Formula holds the source text, Expr the parsed tree, and
//     Data stays nil until evaluation fills it in
//
// the formula text is retained after evaluation so audit and export can
// reproduce it.
type Column struct {
	Name      string
	Formula   string // original text including the '=' prefix
	Expr      Expr
	Aggregate bool // set during validation by shape inference
	Data      *TypedArray

	// optional metadata from the rich source form, not used by evaluation
	Unit  string
	Notes string
}

// IsFormula reports whether the column is defined by a formula
func (c *Column) IsFormula() bool {
	return c.Formula != ""
}

// IsComputed reports whether a formula column has been evaluated
func (c *Column) IsComputed() bool {
	return c.IsFormula() && c.Data != nil
}

// Table is a named collection of columns in declaration order
type Table struct {
	Name    string
	Columns []*Column

	index map[string]*Column
}

// NewTable creates an empty table
func NewTable(name string) *Table {
	return &Table{
		Name:  name,
		index: make(map[string]*Column),
	}
}

// AddColumn appends a column, replacing any previous column of the same
// name
func (t *Table) AddColumn(c *Column) {
	if _, exists := t.index[c.Name]; exists {
		for i, existing := range t.Columns {
			if existing.Name == c.Name {
				t.Columns[i] = c
				break
			}
		}
	} else {
		t.Columns = append(t.Columns, c)
	}
	t.index[c.Name] = c
}

// Column retrieves a column by name
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.index[name]
	return c, ok
}

// RowCount returns the table's row count, defined by its literal and
// computed row-wise columns. zero when the table has no data yet.
func (t *Table) RowCount() int {
	for _, c := range t.Columns {
		if c.Data != nil && !c.Aggregate {
			return c.Data.Len()
		}
	}
	return 0
}

// validateShape checks that every literal and computed row-wise column
// has the same length. aggregate columns are length 1 by definition and
// exempt.
func (t *Table) validateShape() *ModelError {
	rows := -1
	ref := ""
	for _, c := range t.Columns {
		if c.Data == nil || c.Aggregate {
			continue
		}
		if rows == -1 {
			rows = c.Data.Len()
			ref = c.Name
			continue
		}
		if c.Data.Len() != rows {
			return &ModelError{
				Kind: KindShape,
				Node: t.Name + "." + c.Name,
				Message: fmt.Sprintf("column %q has %d rows but column %q has %d rows",
					c.Name, c.Data.Len(), ref, rows),
			}
		}
	}
	return nil
}

// Scalar is a single named value outside any table. Name is the full
// dotted path for scalars inside nested sections.
type Scalar struct {
	Name    string
	Value   Value // nil while a formula scalar is pending
	Formula string
	Expr    Expr

	Unit  string
	Notes string
}

// IsFormula reports whether the scalar is defined by a formula
func (s *Scalar) IsFormula() bool {
	return s.Formula != ""
}

// Model owns all tables and scalars of one parsed document, in
// declaration order
type Model struct {
	Tables  []*Table
	Scalars []*Scalar

	tableIndex  map[string]*Table
	scalarIndex map[string]*Scalar
}

// NewModel creates an empty model
func NewModel() *Model {
	return &Model{
		tableIndex:  make(map[string]*Table),
		scalarIndex: make(map[string]*Scalar),
	}
}

// AddTable appends a table to the model
func (m *Model) AddTable(t *Table) {
	if _, exists := m.tableIndex[t.Name]; !exists {
		m.Tables = append(m.Tables, t)
	}
	m.tableIndex[t.Name] = t
}

// Table retrieves a table by name
func (m *Model) Table(name string) (*Table, bool) {
	t, ok := m.tableIndex[name]
	return t, ok
}

// AddScalar appends a scalar to the model
func (m *Model) AddScalar(s *Scalar) {
	if _, exists := m.scalarIndex[s.Name]; !exists {
		m.Scalars = append(m.Scalars, s)
	}
	m.scalarIndex[s.Name] = s
}

// Scalar retrieves a scalar by its full dotted path
func (m *Model) Scalar(name string) (*Scalar, bool) {
	s, ok := m.scalarIndex[name]
	return s, ok
}

// resolved is the concrete target of a reference. exactly one of Column
// and Scalar is set.
type resolved struct {
	Table  *Table
	Column *Column
	Scalar *Scalar
}

// key returns the stable node identity used by the dependency graph
func (r resolved) key() string {
	if r.Column != nil {
		return r.Table.Name + "." + r.Column.Name
	}
	return r.Scalar.Name
}

// resolveRef resolves a reference against the model. a bare name
// resolves to a column of the host table first, then to a scalar; a
// dotted name resolves to table.column first, then to a nested scalar
// path.
func (m *Model) resolveRef(host *Table, ref *ReferenceNode) (resolved, *ModelError) {
	if ref.Table != "" {
		if t, ok := m.Table(ref.Table); ok {
			if c, ok := t.Column(ref.Name); ok {
				return resolved{Table: t, Column: c}, nil
			}
		}
		// dotted scalar path, e.g. summary.total
		if s, ok := m.Scalar(ref.Table + "." + ref.Name); ok {
			return resolved{Scalar: s}, nil
		}
		return resolved{}, &ModelError{
			Kind:    KindUnresolvedReference,
			Message: fmt.Sprintf("unknown reference %q", ref.String()),
		}
	}

	if host != nil {
		if c, ok := host.Column(ref.Name); ok {
			return resolved{Table: host, Column: c}, nil
		}
	}
	if s, ok := m.Scalar(ref.Name); ok {
		return resolved{Scalar: s}, nil
	}
	return resolved{}, &ModelError{
		Kind:    KindUnresolvedReference,
		Message: fmt.Sprintf("unknown reference %q", ref.Name),
	}
}
