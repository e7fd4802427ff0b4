package runtime

import (
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/types"
)

/**
 * visitNode executes nodeID once per flow invocation and advances along its
 * outgoing edges. The node is marked visited before it runs, so cycles in
 * the graph and diamonds reached from several edges terminate.
 */
func (f *flow) visitNode(fc *flowContext, nodeID string) {
	node, exists := fc.node(nodeID)
	if !exists {
		fc.addError(types.NewExecutionErrorf("edge target node %s not found in flow %s", nodeID, fc.flow.ID))
		return
	}
	if !fc.visit(nodeID) {
		return
	}
	nodesVisited.WithLabelValues(string(node.Type)).Inc()

	switch node.Type {
	case types.NodeTrigger:
		f.visitNext(fc, node)

	case types.NodeEnd:
		return

	case types.NodeCondition:
		f.runConditionNode(fc, node)

	case types.NodeAction:
		if err := f.runHandler(fc, node, func() error { return f.runAction(fc, node) }); err != nil {
			fc.addError(err)
		}
		// a failed side effect does not block the rest of the path
		f.visitNext(fc, node)

	default:
		fc.addError(types.NewExecutionErrorf("node %s has unknown node type %q", node.ID, node.Type))
	}
}

// visitNext follows every outgoing edge of node sequentially in edge-list order.
func (f *flow) visitNext(fc *flowContext, node *types.Node) {
	for _, e := range fc.edgesFrom(node.ID) {
		f.visitNode(fc, e.Target)
	}
}

/**
 * runConditionNode picks the "yes" or "no" edges of a condition node and
 * visits all of their targets concurrently, returning once every branch
 * has finished. No matching edge ends the path without error; an error
 * while evaluating ends it with one.
 */
func (f *flow) runConditionNode(fc *flowContext, node *types.Node) {
	var matched bool
	err := f.runHandler(fc, node, func() error {
		var err error
		matched, err = f.evaluateCondition(fc, node)
		return err
	})
	if err != nil {
		fc.addError(err)
		return
	}

	handle := types.HandleNo
	if matched {
		handle = types.HandleYes
	}
	targets := make([]string, 0)
	for _, e := range fc.edgesFrom(node.ID) {
		if e.SourceHandle == handle {
			targets = append(targets, e.Target)
		}
	}
	log.Debugf("%s flow %s: condition node %s -> %s %v", fc.event.ID, fc.flow.ID, node.ID, handle, targets)
	if len(targets) == 0 {
		return
	}

	wg := sync.WaitGroup{}
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fc.addError(types.NewExecutionErrorf("branch %s of condition node %s aborted: panic: %v",
						target, node.ID, r))
				}
			}()
			f.visitNode(fc, target)
		}(target)
	}
	wg.Wait()
}

// runHandler runs the body of a node, converting a panic into an error.
func (f *flow) runHandler(fc *flowContext, node *types.Node, handler func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = types.NewExecutionErrorf("panic on %s: %v", describeNode(node), r)
		}
	}()
	return errors.Trace(handler())
}
