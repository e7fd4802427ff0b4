package runtime

import (
	"fmt"
	"strings"

	"github.com/warriorguo/eventflow/types"
)

func newFlowRenderer() *flowRenderer {
	return &flowRenderer{nil, &strings.Builder{}}
}

type flowRenderer struct {
	executed map[string]struct{}
	sb       *strings.Builder
}

func (d *flowRenderer) setResult(result *types.FlowExecutionResult) {
	d.executed = make(map[string]struct{})
	if result == nil {
		return
	}
	for _, id := range result.ExecutedNodes {
		d.executed[id] = struct{}{}
	}
}

func (d *flowRenderer) generateDOT(flow *types.Flow, result *types.FlowExecutionResult) (string, error) {
	d.setResult(result)

	d.write("digraph D {")
	for _, n := range flow.Nodes {
		if n != nil {
			d.drawNode(n)
		}
	}
	d.drawLinks(flow)
	d.write("label=%s", quoteString(flow.Name))
	d.write("}")
	return d.sb.String(), nil
}

func (d *flowRenderer) calcAttr(id string) string {
	if _, exists := d.executed[id]; !exists {
		return ""
	}
	return " style=\"filled\" color=\"green\""
}

func (d *flowRenderer) drawNode(n *types.Node) {
	label := n.ID
	shape := "record"
	switch n.Type {
	case types.NodeTrigger:
		shape = "oval"
		if data, ok := n.Data.(*types.TriggerData); ok && data != nil {
			label = fmt.Sprintf("%s\\n%s", n.ID, data.Event)
		}
	case types.NodeCondition:
		shape = "diamond"
		if data, ok := n.Data.(*types.ConditionData); ok && data != nil {
			label = fmt.Sprintf("%s\\n%s %s %v", n.ID, data.Field, data.Operator, data.Value)
		}
	case types.NodeAction:
		if data, ok := n.Data.(*types.ActionData); ok && data != nil {
			label = fmt.Sprintf("%s\\n%s", n.ID, data.Type)
		}
	case types.NodeEnd:
		shape = "doublecircle"
	}
	d.write("%s [label=%s shape=%s%s]", idString(n.ID), quoteString(label), quoteString(shape), d.calcAttr(n.ID))
}

func (d *flowRenderer) drawLinks(flow *types.Flow) {
	for _, e := range flow.Edges {
		if e.SourceHandle == "" {
			d.write("%s -> %s", idString(e.Source), idString(e.Target))
			continue
		}
		d.write("%s -> %s [label=%s]", idString(e.Source), idString(e.Target), quoteString(e.SourceHandle))
	}
}

func (d *flowRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-", ":", "/"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
