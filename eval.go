package forge

import (
	"fmt"
	"math"
)

// evalContext carries the evaluation mode. row is the current row index
// for row-wise formulas and -1 in aggregate mode, where references
// yield whole columns.
type evalContext struct {
	model *Model
	host  *Table
	row   int
}

// evalExpr executes an expression tree depth first. runtime failures
// come back as *CellError values, never as Go errors: they belong to
// cells and propagate through consuming formulas.
func evalExpr(ctx *evalContext, e Expr) Value {
	switch n := e.(type) {
	case *NumberNode:
		return n.Value
	case *StringNode:
		return n.Value
	case *BooleanNode:
		return n.Value
	case *GroupNode:
		return evalExpr(ctx, n.Inner)
	case *ReferenceNode:
		return evalReference(ctx, n)
	case *IndexNode:
		return evalIndex(ctx, n)
	case *ArrayNode:
		return evalArrayLiteral(ctx, n)
	case *UnaryNode:
		return evalUnary(ctx, n)
	case *BinaryNode:
		return evalBinary(ctx, n)
	case *CallNode:
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			args[i] = evalExpr(ctx, a)
		}
		return callFunction(n.Name, args)
	default:
		return NewCellError(ErrorCodeValue, "unsupported expression")
	}
}

// evalReference resolves a reference and yields the row element in
// row-wise mode or the whole column in aggregate mode. aggregate
// columns and length-1 arrays broadcast against the host rows.
func evalReference(ctx *evalContext, ref *ReferenceNode) Value {
	res, err := ctx.model.resolveRef(ctx.host, ref)
	if err != nil {
		return NewCellError(ErrorCodeRef, err.Message)
	}

	if res.Scalar != nil {
		if res.Scalar.IsFormula() && res.Scalar.Value == nil {
			return NewCellError(ErrorCodeRef, fmt.Sprintf("scalar %q not yet computed", res.Scalar.Name))
		}
		return res.Scalar.Value
	}

	data := res.Column.Data
	if data == nil {
		return NewCellError(ErrorCodeRef, fmt.Sprintf("column %q not yet computed", res.key()))
	}

	if ctx.row >= 0 {
		if res.Column.Aggregate || data.Len() == 1 {
			return data.Values[0]
		}
		if ctx.row >= data.Len() {
			return NewCellError(ErrorCodeValue,
				fmt.Sprintf("column %q has %d rows, row %d requested", res.key(), data.Len(), ctx.row))
		}
		return data.Values[ctx.row]
	}
	return data
}

// evalIndex resolves col[i] positional access with zero-based indexes
func evalIndex(ctx *evalContext, n *IndexNode) Value {
	// indexing always looks at the whole column
	whole := &evalContext{model: ctx.model, host: ctx.host, row: -1}
	target := evalReference(whole, n.Ref)
	if err := checkForError(target); err != nil {
		return err
	}
	vals := collectValues(target)

	idx := evalExpr(ctx, n.Index)
	i, err := argInt(idx)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(vals) {
		return NewCellError(ErrorCodeRef, fmt.Sprintf("index %d out of range 0..%d", i, len(vals)-1))
	}
	return vals[i]
}

// evalArrayLiteral builds a typed array from element expressions
func evalArrayLiteral(ctx *evalContext, n *ArrayNode) Value {
	vals := make([]Value, len(n.Elements))
	for i, el := range n.Elements {
		v := evalExpr(ctx, el)
		if _, isArr := v.(*TypedArray); isArr {
			return NewCellError(ErrorCodeValue, "nested arrays are not supported")
		}
		vals[i] = v
	}
	return &TypedArray{Type: arrayElemType(vals), Values: vals}
}

// arrayElemType picks the element type of a computed array from its
// first non-error value
func arrayElemType(vals []Value) ValueType {
	for _, v := range vals {
		if t := typeOf(v); t != TypeError && t != TypeEmpty {
			return t
		}
	}
	return TypeError
}

func evalUnary(ctx *evalContext, n *UnaryNode) Value {
	operand := evalExpr(ctx, n.Operand)
	return mapElements(operand, func(v Value) Value {
		if err := checkForError(v); err != nil {
			return err
		}
		num, ok := toNumber(v)
		if !ok {
			return NewCellError(ErrorCodeValue, fmt.Sprintf("expected a number, got %q", toText(v)))
		}
		switch n.Op {
		case UnOpMinus:
			return -num
		case UnOpPercent:
			return num / 100
		default:
			return num
		}
	})
}

func evalBinary(ctx *evalContext, n *BinaryNode) Value {
	left := evalExpr(ctx, n.Left)
	right := evalExpr(ctx, n.Right)
	return zipElements(left, right, func(a, b Value) Value {
		return applyBinary(n.Op, a, b)
	})
}

// applyBinary applies an operator to two scalar values
func applyBinary(op BinOp, a, b Value) Value {
	if err := checkForError(a); err != nil {
		return err
	}
	if err := checkForError(b); err != nil {
		return err
	}

	switch op {
	case BinOpConcat:
		return toText(a) + toText(b)

	case BinOpAdd:
		// + concatenates when either operand is text that is not a date
		if isPlainText(a) || isPlainText(b) {
			return toText(a) + toText(b)
		}
		return numericOp(a, b, func(x, y float64) Value { return x + y })

	case BinOpSubtract:
		return numericOp(a, b, func(x, y float64) Value { return x - y })

	case BinOpMultiply:
		return numericOp(a, b, func(x, y float64) Value { return x * y })

	case BinOpDivide:
		return numericOp(a, b, func(x, y float64) Value {
			if y == 0 {
				return NewCellError(ErrorCodeDiv0, "")
			}
			return x / y
		})

	case BinOpPower:
		return numericOp(a, b, func(x, y float64) Value {
			result := math.Pow(x, y)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				return NewCellError(ErrorCodeNum, "power result out of range")
			}
			return result
		})

	case BinOpEqual:
		return valuesEqual(a, b)
	case BinOpNotEqual:
		return !valuesEqual(a, b)

	case BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		cmp, ok := compareValues(a, b)
		if !ok {
			return NewCellError(ErrorCodeValue,
				fmt.Sprintf("cannot compare %q and %q", toText(a), toText(b)))
		}
		switch op {
		case BinOpLess:
			return cmp < 0
		case BinOpLessEqual:
			return cmp <= 0
		case BinOpGreater:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}
	return NewCellError(ErrorCodeValue, "unsupported operator")
}

// isPlainText reports whether a value is text that does not coerce to a
// date serial
func isPlainText(v Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, isDate := parseDateText(s)
	return !isDate
}

func numericOp(a, b Value, f func(x, y float64) Value) Value {
	x, ok := toNumber(a)
	if !ok {
		return NewCellError(ErrorCodeValue, fmt.Sprintf("expected a number, got %q", toText(a)))
	}
	y, ok := toNumber(b)
	if !ok {
		return NewCellError(ErrorCodeValue, fmt.Sprintf("expected a number, got %q", toText(b)))
	}
	return f(x, y)
}

// mapElements applies f to a scalar or to every element of an array
func mapElements(v Value, f func(Value) Value) Value {
	arr, ok := v.(*TypedArray)
	if !ok {
		return f(v)
	}
	out := make([]Value, arr.Len())
	for i, el := range arr.Values {
		out[i] = f(el)
	}
	return &TypedArray{Type: arrayElemType(out), Values: out}
}

// zipElements applies f pairwise with scalar broadcasting. two arrays
// of different lengths (neither length 1) are a shape violation and
// yield a #VALUE! cell.
func zipElements(a, b Value, f func(x, y Value) Value) Value {
	arrA, aIsArr := a.(*TypedArray)
	arrB, bIsArr := b.(*TypedArray)

	if !aIsArr && !bIsArr {
		return f(a, b)
	}

	if aIsArr && bIsArr && arrA.Len() != arrB.Len() && arrA.Len() != 1 && arrB.Len() != 1 {
		return NewCellError(ErrorCodeValue,
			fmt.Sprintf("array length mismatch: %d vs %d", arrA.Len(), arrB.Len()))
	}
	length := 1
	if aIsArr && arrA.Len() > length {
		length = arrA.Len()
	}
	if bIsArr && arrB.Len() > length {
		length = arrB.Len()
	}

	at := func(arr *TypedArray, i int) Value {
		if arr.Len() == 1 {
			return arr.Values[0]
		}
		return arr.Values[i]
	}

	out := make([]Value, length)
	for i := 0; i < length; i++ {
		x, y := a, b
		if aIsArr {
			x = at(arrA, i)
		}
		if bIsArr {
			y = at(arrB, i)
		}
		out[i] = f(x, y)
	}
	return &TypedArray{Type: arrayElemType(out), Values: out}
}

// exprIsArray infers whether an expression is array shaped. column
// references are arrays, aggregate functions collapse their arguments,
// operators take the widest operand shape.
func exprIsArray(m *Model, host *Table, e Expr) bool {
	switch n := e.(type) {
	case *ArrayNode:
		return true
	case *GroupNode:
		return exprIsArray(m, host, n.Inner)
	case *ReferenceNode:
		res, err := m.resolveRef(host, n)
		if err != nil || res.Scalar != nil {
			return false
		}
		return !res.Column.Aggregate
	case *UnaryNode:
		return exprIsArray(m, host, n.Operand)
	case *BinaryNode:
		return exprIsArray(m, host, n.Left) || exprIsArray(m, host, n.Right)
	case *CallNode:
		if isAggregateFunction(n.Name) {
			return false
		}
		for _, a := range n.Args {
			if exprIsArray(m, host, a) {
				return true
			}
		}
		return false
	default:
		// literals and index expressions are scalars
		return false
	}
}

// classifyColumns sets the Aggregate flag of every formula column by
// shape inference, in dependency order so referenced columns are
// classified before their dependents
func classifyColumns(m *Model, g *DependencyGraph) {
	for _, key := range g.TopoOrder() {
		node := g.nodes[key]
		if node.Column != nil {
			node.Column.Aggregate = !exprIsArray(m, node.Table, node.Column.Expr)
		}
	}
}

// literalRowCount is the row count fixed by a table's literal columns,
// zero when the table has none
func literalRowCount(t *Table) int {
	for _, c := range t.Columns {
		if !c.IsFormula() && c.Data != nil {
			return c.Data.Len()
		}
	}
	return 0
}

// exprRowCount infers the row count an expression produces from the
// data present so far: array literal lengths and the lengths of
// referenced row-wise columns. zero when nothing fixes it.
func exprRowCount(m *Model, host *Table, e Expr) int {
	switch n := e.(type) {
	case *ArrayNode:
		return len(n.Elements)
	case *GroupNode:
		return exprRowCount(m, host, n.Inner)
	case *ReferenceNode:
		res, err := m.resolveRef(host, n)
		if err != nil || res.Column == nil || res.Column.Aggregate || res.Column.Data == nil {
			return 0
		}
		return res.Column.Data.Len()
	case *UnaryNode:
		return exprRowCount(m, host, n.Operand)
	case *BinaryNode:
		return max(exprRowCount(m, host, n.Left), exprRowCount(m, host, n.Right))
	case *CallNode:
		if isAggregateFunction(n.Name) {
			return 0
		}
		rows := 0
		for _, a := range n.Args {
			rows = max(rows, exprRowCount(m, host, a))
		}
		return rows
	default:
		return 0
	}
}

// tableRowCount resolves a table's row count without evaluating it:
// literal columns fix it directly; a formula-only table takes the
// widest shape its row-wise formulas resolve to. zero when the count
// is not yet knowable.
func tableRowCount(m *Model, t *Table) int {
	if n := literalRowCount(t); n > 0 {
		return n
	}
	rows := 0
	for _, c := range t.Columns {
		if !c.IsFormula() || c.Aggregate || c.Expr == nil {
			continue
		}
		rows = max(rows, exprRowCount(m, t, c.Expr))
	}
	return rows
}

// checkRowAlignment verifies, before any computation, that every column
// referenced by a row-wise formula agrees with the host table's row
// count. length-1 columns broadcast and are exempt.
func checkRowAlignment(m *Model, g *DependencyGraph) []error {
	var errs []error
	for _, key := range g.keys {
		node := g.nodes[key]
		if node.Column == nil || node.Column.Aggregate {
			continue
		}
		hostRows := tableRowCount(m, node.Table)
		if hostRows == 0 {
			continue
		}
		walkRefs(node.Column.Expr, func(ref *ReferenceNode) {
			res, err := m.resolveRef(node.Table, ref)
			if err != nil || res.Column == nil || res.Column.Aggregate {
				return
			}
			refRows := tableRowCount(m, res.Table)
			if refRows == 0 || refRows == 1 || refRows == hostRows {
				return
			}
			errs = append(errs, &ModelError{
				Kind: KindShape,
				Node: key,
				Message: fmt.Sprintf("reference %q has %d rows but table %q has %d rows",
					ref.String(), refRows, node.Table.Name, hostRows),
			})
		})
	}
	return errs
}

// evaluateModel computes every formula node in topological order,
// writing results back into the model. runtime failures land in cells;
// the pass itself always completes.
func evaluateModel(m *Model, g *DependencyGraph) {
	for _, key := range g.TopoOrder() {
		node := g.nodes[key]

		if node.Scalar != nil {
			ctx := &evalContext{model: m, row: -1}
			v := unwrapScalar(evalExpr(ctx, node.Scalar.Expr))
			node.Scalar.Value = v
			continue
		}

		t, c := node.Table, node.Column
		if c.Aggregate {
			ctx := &evalContext{model: m, host: t, row: -1}
			v := unwrapScalar(evalExpr(ctx, c.Expr))
			c.Data = &TypedArray{Type: typeOf(v), Values: []Value{v}}
			continue
		}

		rows := t.RowCount()
		if rows == 0 {
			// formula-only table: the row count comes from the shapes of
			// the columns' own expressions before the first one lands
			rows = tableRowCount(m, t)
			if rows == 0 {
				rows = 1
			}
		}
		vals := make([]Value, rows)
		for r := 0; r < rows; r++ {
			ctx := &evalContext{model: m, host: t, row: r}
			v := evalExpr(ctx, c.Expr)
			if arr, ok := v.(*TypedArray); ok {
				switch {
				case arr.Len() == rows:
					v = arr.Values[r]
				case arr.Len() == 1:
					v = arr.Values[0]
				default:
					v = NewCellError(ErrorCodeValue,
						fmt.Sprintf("array of %d values in a %d-row column", arr.Len(), rows))
				}
			}
			vals[r] = v
		}
		c.Data = &TypedArray{Type: arrayElemType(vals), Values: vals}
	}
}

// unwrapScalar reduces a length-1 array result to its element
func unwrapScalar(v Value) Value {
	if arr, ok := v.(*TypedArray); ok {
		if arr.Len() == 1 {
			return arr.Values[0]
		}
		return NewCellError(ErrorCodeValue, "formula produced an array where a single value was expected")
	}
	return v
}
