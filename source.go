package forge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse loads YAML source text into a Model. tables, columns, and
// scalars keep their declaration order. all formulas are parsed; every
// structural error found is collected and returned joined, so authors
// get complete feedback in one pass.
func Parse(src []byte) (*Model, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, NewModelError(KindSyntax, "invalid document: "+err.Error())
	}
	if len(doc.Content) == 0 {
		return nil, NewModelError(KindSyntax, "empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, NewModelError(KindSyntax, "document root must be a mapping")
	}

	m := NewModel()
	var errs []error

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]

		// keys starting with underscore are document metadata
		if strings.HasPrefix(key, "_") {
			continue
		}

		if value.Kind != yaml.MappingNode {
			errs = append(errs, &ModelError{
				Kind:    KindSyntax,
				Node:    key,
				Message: "top-level entry must be a table or scalar mapping",
			})
			continue
		}

		switch {
		case isScalarMapping(value):
			s, err := parseScalar(key, value)
			if err != nil {
				errs = append(errs, errorAt(err, key))
				continue
			}
			m.AddScalar(s)
		case isNestedScalarSection(value):
			for j := 0; j+1 < len(value.Content); j += 2 {
				path := key + "." + value.Content[j].Value
				s, err := parseScalar(path, value.Content[j+1])
				if err != nil {
					errs = append(errs, errorAt(err, path))
					continue
				}
				m.AddScalar(s)
			}
		default:
			t, tableErrs := parseTable(key, value)
			errs = append(errs, tableErrs...)
			if t != nil {
				m.AddTable(t)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// mappingGet finds the value node for a key in a mapping node
func mappingGet(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// isScalarMapping reports whether a mapping defines a single scalar,
// i.e. carries value and/or formula entries that are not arrays
func isScalarMapping(node *yaml.Node) bool {
	value := mappingGet(node, "value")
	formula := mappingGet(node, "formula")
	if value == nil && formula == nil {
		return false
	}
	if value != nil && value.Kind == yaml.SequenceNode {
		return false // rich table column
	}
	return true
}

// isNestedScalarSection reports whether a mapping's children are scalar
// mappings, e.g. a summary section addressed summary.total
func isNestedScalarSection(node *yaml.Node) bool {
	for i := 1; i < len(node.Content); i += 2 {
		child := node.Content[i]
		if child.Kind == yaml.MappingNode && isScalarMapping(child) {
			return true
		}
	}
	return false
}

// parseScalar reads a {value, formula} mapping. value null with a
// formula marks the scalar computed.
func parseScalar(path string, node *yaml.Node) (*Scalar, *ModelError) {
	if node.Kind != yaml.MappingNode {
		return nil, NewModelError(KindSyntax, "expected mapping for scalar")
	}

	s := &Scalar{Name: path}

	if v := mappingGet(node, "value"); v != nil && v.Tag != "!!null" {
		val, err := scalarValue(v)
		if err != nil {
			return nil, err
		}
		s.Value = val
	}
	if f := mappingGet(node, "formula"); f != nil && f.Tag != "!!null" {
		if !strings.HasPrefix(f.Value, "=") {
			return nil, NewModelError(KindSyntax, "formula must start with '='")
		}
		s.Formula = f.Value
		expr, err := ParseFormula(f.Value)
		if err != nil {
			return nil, err
		}
		s.Expr = expr
	}
	if u := mappingGet(node, "unit"); u != nil {
		s.Unit = u.Value
	}
	if n := mappingGet(node, "notes"); n != nil {
		s.Notes = n.Value
	}

	if s.Value == nil && s.Formula == "" {
		return nil, NewModelError(KindSyntax, "scalar needs a value or a formula")
	}
	return s, nil
}

// scalarValue converts a YAML scalar node to a model value
func scalarValue(node *yaml.Node) (Value, *ModelError) {
	switch node.Tag {
	case "!!int", "!!float":
		num, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return nil, NewModelError(KindSyntax, "invalid number: "+node.Value)
		}
		return num, nil
	case "!!bool":
		return node.Value == "true", nil
	case "!!str":
		return node.Value, nil
	default:
		return nil, NewModelError(KindSyntax, "unsupported value type: "+node.Tag)
	}
}

// parseTable reads a table mapping. each key maps a column name to a
// literal array, a formula string, or the rich mapping form of either.
func parseTable(name string, node *yaml.Node) (*Table, []error) {
	t := NewTable(name)
	var errs []error

	for i := 0; i+1 < len(node.Content); i += 2 {
		colName := node.Content[i].Value
		value := node.Content[i+1]
		fullName := name + "." + colName

		if colName == "_metadata" {
			continue
		}

		switch value.Kind {
		case yaml.ScalarNode:
			if !strings.HasPrefix(value.Value, "=") {
				errs = append(errs, &ModelError{
					Kind:    KindSyntax,
					Node:    fullName,
					Message: "column must be an array or a formula",
				})
				continue
			}
			col, err := formulaColumn(colName, value.Value)
			if err != nil {
				errs = append(errs, errorAt(err, fullName))
				continue
			}
			t.AddColumn(col)

		case yaml.SequenceNode:
			arr, err := parseColumnArray(value)
			if err != nil {
				errs = append(errs, errorAt(err, fullName))
				continue
			}
			t.AddColumn(&Column{Name: colName, Data: arr})

		case yaml.MappingNode:
			col, err := richColumn(colName, value)
			if err != nil {
				errs = append(errs, errorAt(err, fullName))
				continue
			}
			t.AddColumn(col)

		default:
			errs = append(errs, &ModelError{
				Kind:    KindSyntax,
				Node:    fullName,
				Message: "column must be an array or a formula",
			})
		}
	}

	return t, errs
}

// richColumn reads the mapping form {value: [...]} or {formula: "=..."}
// with optional unit and notes metadata
func richColumn(colName string, node *yaml.Node) (*Column, *ModelError) {
	var col *Column

	if v := mappingGet(node, "value"); v != nil && v.Kind == yaml.SequenceNode {
		arr, err := parseColumnArray(v)
		if err != nil {
			return nil, err
		}
		col = &Column{Name: colName, Data: arr}
	} else if f := mappingGet(node, "formula"); f != nil && strings.HasPrefix(f.Value, "=") {
		var err *ModelError
		col, err = formulaColumn(colName, f.Value)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, NewModelError(KindSyntax, "column mapping needs a value array or a formula")
	}

	if u := mappingGet(node, "unit"); u != nil {
		col.Unit = u.Value
	}
	if n := mappingGet(node, "notes"); n != nil {
		col.Notes = n.Value
	}
	return col, nil
}

// formulaColumn parses a formula column definition
func formulaColumn(colName, text string) (*Column, *ModelError) {
	expr, err := ParseFormula(text)
	if err != nil {
		return nil, err
	}
	return &Column{Name: colName, Formula: text, Expr: expr}, nil
}

// parseColumnArray converts a YAML sequence into a typed array. the
// first element fixes the type; date-looking strings make a Date column
// stored as day serials.
func parseColumnArray(node *yaml.Node) (*TypedArray, *ModelError) {
	if len(node.Content) == 0 {
		return nil, NewModelError(KindTypeMismatch, "column cannot be empty")
	}

	elemType, err := detectElementType(node.Content[0])
	if err != nil {
		return nil, err
	}

	values := make([]Value, 0, len(node.Content))
	for i, el := range node.Content {
		if el.Tag == "!!null" {
			return nil, &ModelError{
				Kind:    KindTypeMismatch,
				Message: fmt.Sprintf("row %d: null values not allowed, use 0 or remove the row", i),
			}
		}
		switch elemType {
		case TypeNumber:
			if el.Tag != "!!int" && el.Tag != "!!float" {
				return nil, typeMismatchAt(i, TypeNumber, el)
			}
			num, perr := strconv.ParseFloat(el.Value, 64)
			if perr != nil {
				return nil, &ModelError{
					Kind:    KindTypeMismatch,
					Message: fmt.Sprintf("row %d: invalid number %q", i, el.Value),
				}
			}
			values = append(values, num)
		case TypeDate:
			serial, ok := float64(0), false
			if el.Tag == "!!str" || el.Tag == "!!timestamp" {
				serial, ok = parseDateText(el.Value)
			}
			if !ok {
				return nil, &ModelError{
					Kind:    KindTypeMismatch,
					Message: fmt.Sprintf("row %d: invalid date %q (expected YYYY-MM or YYYY-MM-DD)", i, el.Value),
				}
			}
			values = append(values, serial)
		case TypeText:
			if el.Tag != "!!str" {
				return nil, typeMismatchAt(i, TypeText, el)
			}
			values = append(values, el.Value)
		case TypeBoolean:
			if el.Tag != "!!bool" {
				return nil, typeMismatchAt(i, TypeBoolean, el)
			}
			values = append(values, el.Value == "true")
		}
	}

	return &TypedArray{Type: elemType, Values: values}, nil
}

// detectElementType classifies the first element of a column array
func detectElementType(node *yaml.Node) (ValueType, *ModelError) {
	switch node.Tag {
	case "!!int", "!!float":
		return TypeNumber, nil
	case "!!bool":
		return TypeBoolean, nil
	case "!!str", "!!timestamp":
		if _, ok := parseDateText(node.Value); ok {
			return TypeDate, nil
		}
		return TypeText, nil
	case "!!null":
		return TypeEmpty, NewModelError(KindTypeMismatch,
			"array cannot start with null, the first element determines the column type")
	default:
		return TypeEmpty, NewModelError(KindTypeMismatch, "unsupported array element type")
	}
}

func typeMismatchAt(row int, want ValueType, node *yaml.Node) *ModelError {
	found := "value"
	switch node.Tag {
	case "!!int", "!!float":
		found = "Number"
	case "!!str":
		found = "Text"
	case "!!bool":
		found = "Boolean"
	}
	return &ModelError{
		Kind:    KindTypeMismatch,
		Message: fmt.Sprintf("row %d: expected %s, found %s", row, want, found),
	}
}
