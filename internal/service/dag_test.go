package service

import (
	"testing"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

func node(id string, typ core.NodeType) core.Node {
	return core.Node{ID: id, Type: typ, Data: core.NodeData{Label: "L-" + id}}
}

func edge(src, dst string) core.Edge {
	return core.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func TestValidateGraph_LinearChain(t *testing.T) {
	nodes := []core.Node{
		node("t", core.NodeTypeTrigger),
		node("a", core.NodeTypeAction),
		node("b", core.NodeTypeAction),
	}
	edges := []core.Edge{edge("t", "a"), edge("a", "b")}

	plan, err := ValidateGraph(nodes, edges)
	if err != nil {
		t.Fatalf("ValidateGraph() error = %v", err)
	}

	want := []string{"t", "a", "b"}
	for i, id := range want {
		if plan.Order[i] != id {
			t.Errorf("Order[%d] = %s, want %s", i, plan.Order[i], id)
		}
	}
	if len(plan.Levels) != 3 {
		t.Errorf("len(Levels) = %d, want 3", len(plan.Levels))
	}
	if len(plan.Entries) != 1 || plan.Entries[0] != "t" {
		t.Errorf("Entries = %v, want [t]", plan.Entries)
	}
}

func TestValidateGraph_Levels(t *testing.T) {
	// t -> a, t -> b, a -> c, b -> c
	nodes := []core.Node{
		node("t", core.NodeTypeTrigger),
		node("a", core.NodeTypeAction),
		node("b", core.NodeTypeAction),
		node("c", core.NodeTypeAction),
	}
	edges := []core.Edge{edge("t", "a"), edge("t", "b"), edge("a", "c"), edge("b", "c")}

	plan, err := ValidateGraph(nodes, edges)
	if err != nil {
		t.Fatalf("ValidateGraph() error = %v", err)
	}
	if len(plan.Levels) != 3 {
		t.Fatalf("len(Levels) = %d, want 3", len(plan.Levels))
	}
	if len(plan.Levels[1]) != 2 {
		t.Errorf("Levels[1] = %v, want two parallel nodes", plan.Levels[1])
	}
	if len(plan.Incoming["c"]) != 2 || len(plan.Outgoing["t"]) != 2 {
		t.Errorf("edge indexes not built: in(c)=%d out(t)=%d", len(plan.Incoming["c"]), len(plan.Outgoing["t"]))
	}
}

func TestValidateGraph_Cycle(t *testing.T) {
	nodes := []core.Node{
		node("t", core.NodeTypeTrigger),
		node("a", core.NodeTypeAction),
		node("b", core.NodeTypeAction),
	}
	edges := []core.Edge{edge("t", "a"), edge("a", "b"), edge("b", "a")}

	_, err := ValidateGraph(nodes, edges)
	if !core.HasCode(err, core.CodeGraphCycle) {
		t.Fatalf("ValidateGraph() error = %v, want cycle", err)
	}

	var domErr *core.DomainError
	if de, ok := err.(*core.DomainError); ok {
		domErr = de
	}
	members, _ := domErr.Details["nodes"].([]string)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Errorf("cycle members = %v, want [a b]", members)
	}
}

func TestValidateGraph_UnknownEdgeNode(t *testing.T) {
	nodes := []core.Node{node("t", core.NodeTypeTrigger)}
	_, err := ValidateGraph(nodes, []core.Edge{edge("t", "ghost")})
	if !core.HasCode(err, core.CodeUnknownEdgeNode) {
		t.Fatalf("error = %v, want %s", err, core.CodeUnknownEdgeNode)
	}
}

func TestValidateGraph_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		nodes []core.Node
		edges []core.Edge
		code  string
	}{
		{"empty", nil, nil, core.CodeGraphEmpty},
		{"duplicate id", []core.Node{node("a", core.NodeTypeTrigger), node("a", core.NodeTypeAction)}, nil, core.CodeDuplicateNode},
		{"bad type", []core.Node{{ID: "a", Type: "loop"}}, nil, core.CodeInvalidNodeType},
		{
			"duplicate label",
			[]core.Node{
				{ID: "a", Type: core.NodeTypeTrigger, Data: core.NodeData{Label: "Same"}},
				{ID: "b", Type: core.NodeTypeAction, Data: core.NodeData{Label: "Same"}},
			},
			nil,
			core.CodeDuplicateLabel,
		},
		{"self loop", []core.Node{node("a", core.NodeTypeTrigger)}, []core.Edge{edge("a", "a")}, core.CodeGraphCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateGraph(tt.nodes, tt.edges)
			if !core.HasCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
			if !core.IsCategory(err, core.ErrCatValidation) {
				t.Errorf("category = %s, want validation", core.GetCategory(err))
			}
		})
	}
}

func TestValidateGraph_MultipleEntries(t *testing.T) {
	nodes := []core.Node{
		node("t1", core.NodeTypeTrigger),
		node("t2", core.NodeTypeTrigger),
		node("a", core.NodeTypeAction),
	}
	plan, err := ValidateGraph(nodes, []core.Edge{edge("t1", "a"), edge("t2", "a")})
	if err != nil {
		t.Fatalf("ValidateGraph() error = %v", err)
	}
	if len(plan.Entries) != 2 {
		t.Errorf("Entries = %v, want 2 entries", plan.Entries)
	}
}
