package runtime

import (
	"fmt"

	"github.com/warriorguo/eventflow/types"
)

/**
 * validateFlow runs the static checks that must pass before any node runs:
 *   - the flow has at least one node
 *   - it has exactly one trigger node
 *   - every edge leaving a condition node carries a "yes" or "no" handle
 * A condition with only one of the two branches wired is valid, the other
 * branch ends silently at runtime.
 */
func validateFlow(flow *types.Flow) []types.ValidationIssue {
	issues := make([]types.ValidationIssue, 0)
	if flow == nil {
		return append(issues, types.ValidationIssue{Message: "flow is nil"})
	}
	if len(flow.Nodes) == 0 {
		return append(issues, types.ValidationIssue{Message: fmt.Sprintf("flow %s has no nodes", flow.ID)})
	}

	triggers := 0
	conditions := make(map[string]struct{})
	for _, n := range flow.Nodes {
		if n == nil {
			issues = append(issues, types.ValidationIssue{Message: "flow contains a nil node"})
			continue
		}
		switch n.Type {
		case types.NodeTrigger:
			triggers++
		case types.NodeCondition:
			conditions[n.ID] = struct{}{}
		}
	}
	switch {
	case triggers == 0:
		issues = append(issues, types.ValidationIssue{Message: fmt.Sprintf("flow %s has no trigger node", flow.ID)})
	case triggers > 1:
		issues = append(issues, types.ValidationIssue{
			Message: fmt.Sprintf("flow %s has %d trigger nodes, expected exactly one", flow.ID, triggers),
		})
	}

	for _, e := range flow.Edges {
		if _, isCond := conditions[e.Source]; !isCond {
			continue
		}
		switch e.SourceHandle {
		case types.HandleYes, types.HandleNo:
		case "":
			issues = append(issues, types.ValidationIssue{
				NodeID:  e.Source,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %s from condition node %s has no sourceHandle", e.ID, e.Source),
			})
		default:
			issues = append(issues, types.ValidationIssue{
				NodeID: e.Source,
				EdgeID: e.ID,
				Message: fmt.Sprintf("edge %s from condition node %s has invalid sourceHandle %q, expected %q or %q",
					e.ID, e.Source, e.SourceHandle, types.HandleYes, types.HandleNo),
			})
		}
	}
	return issues
}
