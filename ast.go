package forge

import (
	"strconv"
	"strings"
)

// Expr is a node of a parsed formula expression tree. nodes are owned
// exclusively by their column; trees are never shared.
type Expr interface {
	// Pos returns the rune position of the node in the source formula
	Pos() int
	// String renders the canonical formula text for the node. parsing the
	// rendered text yields an equivalent tree.
	String() string
}

// binOpStrings maps binary operators to their canonical formula text
var binOpStrings = map[BinOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

// binOpFromToken maps operator token text to BinOp
var binOpFromToken = map[string]BinOp{
	"+":  BinOpAdd,
	"-":  BinOpSubtract,
	"*":  BinOpMultiply,
	"/":  BinOpDivide,
	"^":  BinOpPower,
	"&":  BinOpConcat,
	"=":  BinOpEqual,
	"<>": BinOpNotEqual,
	"<":  BinOpLess,
	"<=": BinOpLessEqual,
	">":  BinOpGreater,
	">=": BinOpGreaterEqual,
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position int
}

func (n *NumberNode) Pos() int { return n.Position }

func (n *NumberNode) String() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position int
}

func (n *StringNode) Pos() int { return n.Position }

func (n *StringNode) String() string {
	return "\"" + strings.ReplaceAll(n.Value, "\"", "\"\"") + "\""
}

// BooleanNode represents TRUE or FALSE
type BooleanNode struct {
	Value    bool
	Position int
}

func (n *BooleanNode) Pos() int { return n.Position }

func (n *BooleanNode) String() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ReferenceNode identifies a column in the formula's own table (Table
// empty), a qualified table.column, or a scalar. which one it is gets
// decided at resolution time, not at parse time.
type ReferenceNode struct {
	Table    string
	Name     string
	Position int
}

func (n *ReferenceNode) Pos() int { return n.Position }

func (n *ReferenceNode) String() string {
	if n.Table != "" {
		return n.Table + "." + n.Name
	}
	return n.Name
}

// IndexNode represents positional access into a reference, e.g. col[0]
type IndexNode struct {
	Ref      *ReferenceNode
	Index    Expr
	Position int
}

func (n *IndexNode) Pos() int { return n.Position }

func (n *IndexNode) String() string {
	return n.Ref.String() + "[" + n.Index.String() + "]"
}

// ArrayNode represents an inline array literal, e.g. [1,2,3]
type ArrayNode struct {
	Elements []Expr
	Position int
}

func (n *ArrayNode) Pos() int { return n.Position }

func (n *ArrayNode) String() string {
	parts := make([]string, len(n.Elements))
	for i, e := range n.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// BinaryNode represents a binary operation
type BinaryNode struct {
	Op       BinOp
	Left     Expr
	Right    Expr
	Position int
}

func (n *BinaryNode) Pos() int { return n.Position }

func (n *BinaryNode) String() string {
	return n.Left.String() + binOpStrings[n.Op] + n.Right.String()
}

// UnaryNode represents a unary prefix or postfix operation
type UnaryNode struct {
	Op       UnOp
	Operand  Expr
	Position int
}

func (n *UnaryNode) Pos() int { return n.Position }

func (n *UnaryNode) String() string {
	switch n.Op {
	case UnOpMinus:
		return "-" + n.Operand.String()
	case UnOpPlus:
		return "+" + n.Operand.String()
	default:
		return n.Operand.String() + "%"
	}
}

// CallNode represents a function call
type CallNode struct {
	Name     string // always upper case
	Args     []Expr
	Position int
}

func (n *CallNode) Pos() int { return n.Position }

func (n *CallNode) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}

// GroupNode preserves explicit parentheses so rendered formulas keep
// their grouping
type GroupNode struct {
	Inner    Expr
	Position int
}

func (n *GroupNode) Pos() int { return n.Position }

func (n *GroupNode) String() string {
	return "(" + n.Inner.String() + ")"
}

// walkRefs calls fn for every reference node in the tree, including
// references nested inside function arguments and index expressions
func walkRefs(e Expr, fn func(*ReferenceNode)) {
	switch n := e.(type) {
	case *ReferenceNode:
		fn(n)
	case *IndexNode:
		fn(n.Ref)
		walkRefs(n.Index, fn)
	case *ArrayNode:
		for _, el := range n.Elements {
			walkRefs(el, fn)
		}
	case *BinaryNode:
		walkRefs(n.Left, fn)
		walkRefs(n.Right, fn)
	case *UnaryNode:
		walkRefs(n.Operand, fn)
	case *CallNode:
		for _, a := range n.Args {
			walkRefs(a, fn)
		}
	case *GroupNode:
		walkRefs(n.Inner, fn)
	}
}
