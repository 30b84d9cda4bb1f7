package core

import (
	"strings"
	"time"
)

// WorkflowID uniquely identifies a stored workflow.
type WorkflowID string

// NodeType is the role a node plays in a graph.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeTransform NodeType = "transform"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTrigger, NodeTypeAction, NodeTypeCondition, NodeTypeTransform:
		return true
	}
	return false
}

// Branch labels carried by edges leaving a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Node is a unit of work in a workflow graph.
// Presentation attributes are accepted and ignored by the engine.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Data     NodeData       `json:"data" yaml:"data"`
	Position map[string]any `json:"position,omitempty" yaml:"position,omitempty"`
}

// NodeData holds the label, the step to invoke and its configuration.
type NodeData struct {
	Label      string         `json:"label" yaml:"label"`
	ActionSlug string         `json:"actionSlug,omitempty" yaml:"actionSlug,omitempty"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Name returns the label, or the id when the node is unlabeled.
func (n Node) Name() string {
	if n.Data.Label != "" {
		return n.Data.Label
	}
	return n.ID
}

// IntegrationRef returns the integration named by the unresolved node config,
// if any. A reference in it is only meaningful after resolution.
func (n Node) IntegrationRef() string {
	if n.Data.Config == nil {
		return ""
	}
	ref, _ := n.Data.Config["integrationId"].(string)
	return strings.TrimSpace(ref)
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Branch returns the branch label for edges leaving a condition node.
// Unlabeled edges count as the true branch.
func (e Edge) Branch() string {
	for _, v := range []string{e.SourceHandle, e.Label} {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return BranchTrue
		case "false", "no":
			return BranchFalse
		}
	}
	return BranchTrue
}

// Workflow is a stored graph definition.
type Workflow struct {
	ID          WorkflowID `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	UserID      string     `json:"userId,omitempty" yaml:"userId,omitempty"`
	Nodes       []Node     `json:"nodes" yaml:"nodes"`
	Edges       []Edge     `json:"edges" yaml:"edges"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"-"`
}
