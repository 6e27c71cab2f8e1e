package forge

import (
	"errors"
	"fmt"
	"strings"
)

// Validate collects every structural error in the model in one pass:
// unresolved references, literal shape violations, reference cycles,
// row-count misalignment, and malformed literal criteria strings. an
// empty result means the model is ready to evaluate.
func Validate(m *Model) []error {
	var errs []error

	for _, t := range m.Tables {
		if err := t.validateShape(); err != nil {
			errs = append(errs, err)
		}
	}

	g, graphErrs := BuildGraph(m)
	errs = append(errs, graphErrs...)

	if cycle := g.FindCycle(); cycle != nil {
		errs = append(errs, &ModelError{
			Kind:    KindCircularDependency,
			Message: "formulas form a reference cycle",
			Node:    cycle[0],
			Cycle:   cycle,
		})
		return errs // alignment checks assume a valid topology
	}

	classifyColumns(m, g)
	errs = append(errs, checkRowAlignment(m, g)...)
	errs = append(errs, checkCriteriaLiterals(g)...)

	return errs
}

// checkCriteriaLiterals validates literal criteria arguments of the
// conditional-aggregation functions up front. criteria built from
// non-literal expressions can only fail at run time, as cell errors.
func checkCriteriaLiterals(g *DependencyGraph) []error {
	var errs []error
	for _, key := range g.keys {
		node := g.nodes[key]
		walkCalls(node.expr(), func(call *CallNode) {
			for _, pos := range criteriaArgPositions(call.Name, len(call.Args)) {
				lit, ok := call.Args[pos].(*StringNode)
				if !ok {
					continue
				}
				if err := validateCriteriaText(lit.Value); err != nil {
					errs = append(errs, errorAt(err, key))
				}
			}
		})
	}
	return errs
}

// walkCalls visits every function call node in the tree
func walkCalls(e Expr, fn func(*CallNode)) {
	switch n := e.(type) {
	case *CallNode:
		fn(n)
		for _, a := range n.Args {
			walkCalls(a, fn)
		}
	case *BinaryNode:
		walkCalls(n.Left, fn)
		walkCalls(n.Right, fn)
	case *UnaryNode:
		walkCalls(n.Operand, fn)
	case *GroupNode:
		walkCalls(n.Inner, fn)
	case *ArrayNode:
		for _, el := range n.Elements {
			walkCalls(el, fn)
		}
	case *IndexNode:
		walkCalls(n.Index, fn)
	}
}

// Evaluate computes every formula column and scalar of the model in
// dependency order and returns the same model, filled in. structural
// errors abort before any computation; runtime failures are stored in
// the affected cells and the rest of the model still evaluates.
// evaluation is deterministic: the same model input always produces
// bit-identical results.
func Evaluate(m *Model) (*Model, error) {
	if errs := Validate(m); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// the graph is a derived artifact: rebuilt here, discarded on return
	g, _ := BuildGraph(m)
	classifyColumns(m, g)
	evaluateModel(m, g)

	for _, t := range m.Tables {
		if err := t.validateShape(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AuditStep is one entry of a dependency-chain trace
type AuditStep struct {
	Node    string // "table.column" or scalar path
	Formula string // empty for literal inputs
	Value   string // rendered current value
}

// Audit returns the transitive dependencies of a formula node in
// dependency-first order, ending with the node itself, with each
// node's formula and current value. evaluate the model first to see
// computed values in the trace.
func Audit(m *Model, node string) ([]AuditStep, error) {
	g, graphErrs := BuildGraph(m)
	if len(graphErrs) > 0 {
		return nil, errors.Join(graphErrs...)
	}

	if _, ok := g.nodes[node]; !ok {
		if !nodeExists(m, node) {
			return nil, NewModelError(KindUnresolvedReference, fmt.Sprintf("unknown node %q", node))
		}
		// literal node: nothing to trace
		return []AuditStep{auditStep(m, node)}, nil
	}

	keys := append(g.transitiveDeps(node), node)
	steps := make([]AuditStep, len(keys))
	for i, key := range keys {
		steps[i] = auditStep(m, key)
	}
	return steps, nil
}

func nodeExists(m *Model, node string) bool {
	if _, ok := m.Scalar(node); ok {
		return true
	}
	table, column, found := strings.Cut(node, ".")
	if !found {
		return false
	}
	t, ok := m.Table(table)
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

func auditStep(m *Model, key string) AuditStep {
	if s, ok := m.Scalar(key); ok {
		return AuditStep{Node: key, Formula: s.Formula, Value: formatValue(s.Value)}
	}
	table, column, _ := strings.Cut(key, ".")
	if t, ok := m.Table(table); ok {
		if c, ok := t.Column(column); ok {
			step := AuditStep{Node: key, Formula: c.Formula}
			if c.Data != nil {
				parts := make([]string, c.Data.Len())
				for i, v := range c.Data.Values {
					parts[i] = formatValue(v)
				}
				step.Value = "[" + strings.Join(parts, ", ") + "]"
			}
			return step
		}
	}
	return AuditStep{Node: key}
}
