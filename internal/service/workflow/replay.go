package workflow

import (
	"sort"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// ReplayResults rebuilds the result map of a run from its step logs. Only
// successful steps contribute, applied in start order.
func ReplayResults(logs []*core.StepLog) core.ResultMap {
	ordered := make([]*core.StepLog, 0, len(logs))
	for _, l := range logs {
		if l != nil && l.Status == core.StatusSuccess {
			ordered = append(ordered, l)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.Before(ordered[j].StartedAt)
	})

	results := core.ResultMap{}
	for _, l := range ordered {
		node := core.Node{ID: l.NodeID, Type: l.NodeType}
		if l.NodeName != l.NodeID {
			node.Data.Label = l.NodeName
		}
		results.Put(node, l.Output)
	}
	return results
}
