package forge

// graphNode represents one formula-bearing column or scalar in the
// dependency graph. nodes are indexed by stable string identity keys
// ("table.column" or the scalar path), never by live pointers between
// columns, and the graph is rebuilt from scratch for each evaluation.
type graphNode struct {
	Key    string
	Table  *Table  // nil for scalar nodes
	Column *Column // nil for scalar nodes
	Scalar *Scalar // nil for column nodes

	// keys of formula nodes this node reads, in order of appearance
	Precedents []string

	// declaration index, used to break topological-order ties
	order int
}

// DependencyGraph holds the formula nodes of one model and the edges
// between them. it is a derived artifact: built per evaluation pass and
// discarded afterwards.
type DependencyGraph struct {
	nodes map[string]*graphNode
	keys  []string // declaration order
}

// BuildGraph walks every formula's expression tree, resolves its
// references, and records edges between formula nodes. resolution
// failures are collected, not short-circuited.
func BuildGraph(m *Model) (*DependencyGraph, []error) {
	g := &DependencyGraph{nodes: make(map[string]*graphNode)}
	var errs []error

	// create one node per formula column and formula scalar
	for _, t := range m.Tables {
		for _, c := range t.Columns {
			if !c.IsFormula() {
				continue
			}
			key := t.Name + "." + c.Name
			g.addNode(&graphNode{Key: key, Table: t, Column: c, order: len(g.keys)})
		}
	}
	for _, s := range m.Scalars {
		if !s.IsFormula() {
			continue
		}
		g.addNode(&graphNode{Key: s.Name, Scalar: s, order: len(g.keys)})
	}

	// collect edges. only formula-bearing targets become precedents,
	// literal data is already available.
	for _, key := range g.keys {
		node := g.nodes[key]
		host := node.Table
		expr := node.expr()

		seen := make(map[string]bool)
		var walkErr *ModelError
		walkRefs(expr, func(ref *ReferenceNode) {
			target, err := m.resolveRef(host, ref)
			if err != nil {
				if walkErr == nil {
					walkErr = errorAt(err, key)
				}
				return
			}
			targetKey := target.key()
			if _, isFormula := g.nodes[targetKey]; !isFormula {
				return
			}
			if !seen[targetKey] {
				seen[targetKey] = true
				node.Precedents = append(node.Precedents, targetKey)
			}
		})
		if walkErr != nil {
			errs = append(errs, walkErr)
		}
	}

	return g, errs
}

func (g *DependencyGraph) addNode(n *graphNode) {
	if _, exists := g.nodes[n.Key]; exists {
		return
	}
	g.nodes[n.Key] = n
	g.keys = append(g.keys, n.Key)
}

func (n *graphNode) expr() Expr {
	if n.Column != nil {
		return n.Column.Expr
	}
	return n.Scalar.Expr
}

// FindCycle detects a reference cycle with a three-color DFS and
// returns the cycle path verbatim, first node repeated at the end. a
// self-reference is a one-node cycle. returns nil when acyclic.
func (g *DependencyGraph) FindCycle() []string {
	// three states: unvisited (not in map), visiting (false), visited (true)
	state := make(map[string]bool)
	var stack []string
	var cycle []string

	var visit func(key string) bool
	visit = func(key string) bool {
		if done, exists := state[key]; exists {
			if !done {
				// currently visiting - cycle detected, slice the stack
				// from the first occurrence of this node
				for i, k := range stack {
					if k == key {
						cycle = append(append([]string{}, stack[i:]...), key)
						break
					}
				}
				return true
			}
			return false
		}

		state[key] = false
		stack = append(stack, key)

		for _, dep := range g.nodes[key].Precedents {
			if visit(dep) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		state[key] = true
		return false
	}

	for _, key := range g.keys {
		if _, visited := state[key]; !visited {
			if visit(key) {
				return cycle
			}
		}
	}
	return nil
}

// TopoOrder returns the node keys in evaluation order using Kahn's
// algorithm. among ready nodes the one declared first goes first, so
// repeated evaluation of the same model is deterministic. the graph
// must be acyclic.
func (g *DependencyGraph) TopoOrder() []string {
	indegree := make(map[string]int, len(g.keys))
	dependents := make(map[string][]string, len(g.keys))
	for _, key := range g.keys {
		for _, dep := range g.nodes[key].Precedents {
			indegree[key]++
			dependents[dep] = append(dependents[dep], key)
		}
	}

	emitted := make(map[string]bool, len(g.keys))
	order := make([]string, 0, len(g.keys))

	for len(order) < len(g.keys) {
		picked := ""
		for _, key := range g.keys { // declaration order scan
			if !emitted[key] && indegree[key] == 0 {
				picked = key
				break
			}
		}
		if picked == "" {
			break // cycle, caller validates first
		}
		emitted[picked] = true
		order = append(order, picked)
		for _, dep := range dependents[picked] {
			indegree[dep]--
		}
	}
	return order
}

// transitiveDeps returns all formula nodes the given node depends on,
// directly or indirectly, in dependency-first order
func (g *DependencyGraph) transitiveDeps(key string) []string {
	visited := make(map[string]bool)
	var result []string

	var visit func(k string)
	visit = func(k string) {
		node, exists := g.nodes[k]
		if !exists || visited[k] {
			return
		}
		visited[k] = true
		for _, dep := range node.Precedents {
			visit(dep)
			if !contains(result, dep) {
				result = append(result, dep)
			}
		}
	}
	visit(key)
	return result
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
