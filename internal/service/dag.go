package service

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// DAGBuilder collects nodes and edges and validates them into a GraphPlan.
type DAGBuilder struct {
	order    []string // node ids in declaration order
	nodes    map[string]core.Node
	incoming map[string][]core.Edge
	outgoing map[string][]core.Edge
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		nodes:    make(map[string]core.Node),
		incoming: make(map[string][]core.Edge),
		outgoing: make(map[string][]core.Edge),
	}
}

// AddNode adds a node to the graph.
func (d *DAGBuilder) AddNode(node core.Node) error {
	if strings.TrimSpace(node.ID) == "" {
		return core.ErrGraph(core.CodeDuplicateNode, "node id must not be empty")
	}
	if _, exists := d.nodes[node.ID]; exists {
		return core.ErrGraph(core.CodeDuplicateNode, fmt.Sprintf("node %s already exists", node.ID)).
			WithDetail("node", node.ID)
	}
	if !node.Type.Valid() {
		return core.ErrGraph(core.CodeInvalidNodeType, fmt.Sprintf("node %s has unknown type %q", node.ID, node.Type)).
			WithDetail("node", node.ID)
	}

	d.nodes[node.ID] = node
	d.order = append(d.order, node.ID)
	return nil
}

// AddEdge adds a directed edge. Both endpoints must already exist.
func (d *DAGBuilder) AddEdge(edge core.Edge) error {
	for _, id := range []string{edge.Source, edge.Target} {
		if _, exists := d.nodes[id]; !exists {
			return core.ErrGraph(core.CodeUnknownEdgeNode,
				fmt.Sprintf("edge %s references unknown node %q", edge.ID, id)).
				WithDetail("edge", edge.ID)
		}
	}

	d.outgoing[edge.Source] = append(d.outgoing[edge.Source], edge)
	d.incoming[edge.Target] = append(d.incoming[edge.Target], edge)
	return nil
}

// GraphPlan is a validated graph ready for scheduling.
type GraphPlan struct {
	Nodes    map[string]core.Node
	Order    []string   // topological order, ties broken by declaration order
	Levels   [][]string // nodes grouped by dependency depth
	Entries  []string   // nodes without incoming edges
	Incoming map[string][]core.Edge
	Outgoing map[string][]core.Edge
}

// Node returns the node with id.
func (p *GraphPlan) Node(id string) core.Node {
	return p.Nodes[id]
}

// Build validates the graph and returns the plan.
func (d *DAGBuilder) Build() (*GraphPlan, error) {
	if len(d.nodes) == 0 {
		return nil, core.ErrGraph(core.CodeGraphEmpty, "graph has no nodes")
	}

	if err := d.checkLabels(); err != nil {
		return nil, err
	}

	order, err := d.topologicalSort()
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0)
	for _, id := range d.order {
		if len(d.incoming[id]) == 0 {
			entries = append(entries, id)
		}
	}
	// Unreachable for an acyclic graph, kept for malformed input
	if len(entries) == 0 {
		return nil, core.ErrGraph(core.CodeNoEntryNode, "graph has no entry node")
	}

	return &GraphPlan{
		Nodes:    d.copyNodes(),
		Order:    order,
		Levels:   d.calculateLevels(order),
		Entries:  entries,
		Incoming: copyEdgeIndex(d.incoming),
		Outgoing: copyEdgeIndex(d.outgoing),
	}, nil
}

// checkLabels rejects labels that would make references ambiguous.
func (d *DAGBuilder) checkLabels() error {
	seen := make(map[string]string)
	for _, id := range d.order {
		label := d.nodes[id].Data.Label
		if label == "" {
			continue
		}
		if other, dup := seen[label]; dup {
			return core.ErrGraph(core.CodeDuplicateLabel,
				fmt.Sprintf("nodes %s and %s share label %q", other, id, label)).
				WithDetail("label", label)
		}
		if _, clash := d.nodes[label]; clash && label != id {
			return core.ErrGraph(core.CodeDuplicateLabel,
				fmt.Sprintf("label %q of node %s is the id of another node", label, id)).
				WithDetail("label", label)
		}
		seen[label] = id
	}
	return nil
}

// topologicalSort returns nodes in dependency order using Kahn's algorithm.
// Nodes left unvisited are the members of at least one cycle.
func (d *DAGBuilder) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for _, id := range d.order {
		inDegree[id] = len(d.incoming[id])
	}

	queue := make([]string, 0)
	for _, id := range d.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(d.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, edge := range d.outgoing[current] {
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if len(result) != len(d.nodes) {
		members := make([]string, 0, len(d.nodes)-len(result))
		for _, id := range d.order {
			if inDegree[id] > 0 {
				members = append(members, id)
			}
		}
		return nil, core.ErrGraph(core.CodeGraphCycle,
			fmt.Sprintf("graph contains a cycle through %s", strings.Join(members, ", "))).
			WithDetail("nodes", members)
	}

	return result, nil
}

// calculateLevels groups nodes by the length of their longest dependency chain.
func (d *DAGBuilder) calculateLevels(order []string) [][]string {
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		for _, edge := range d.incoming[id] {
			if depth[edge.Source]+1 > depth[id] {
				depth[id] = depth[edge.Source] + 1
			}
		}
		if depth[id] > maxDepth {
			maxDepth = depth[id]
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, id := range order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

func (d *DAGBuilder) copyNodes() map[string]core.Node {
	result := make(map[string]core.Node, len(d.nodes))
	for k, v := range d.nodes {
		result[k] = v
	}
	return result
}

func copyEdgeIndex(src map[string][]core.Edge) map[string][]core.Edge {
	result := make(map[string][]core.Edge, len(src))
	for k, v := range src {
		result[k] = append([]core.Edge{}, v...)
	}
	return result
}

// ValidateGraph checks nodes and edges and returns the execution plan.
// It is the only validation performed once per run.
func ValidateGraph(nodes []core.Node, edges []core.Edge) (*GraphPlan, error) {
	d := NewDAGBuilder()
	for _, n := range nodes {
		if err := d.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := d.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return d.Build()
}
