package runtime

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/types"
	"github.com/warriorguo/eventflow/utils"
)

var (
	_ types.Context = &flowContext{}
)

/**
 * flowContext is the state of one flow invocation. A sub-flow call builds
 * a new flowContext with its own visited set, only the call stack is
 * inherited from the parent.
 * visited and errors are written by concurrent condition branches, so
 * they are guarded by mu.
 */
type flowContext struct {
	context.Context

	flow    *types.Flow
	event   *types.Event
	payload types.Data

	depth     int
	callStack []string

	// adjacency index of flow, built once per invocation
	nodes    map[string]*types.Node
	outgoing map[string][]types.Edge

	mu       sync.Mutex
	visited  map[string]struct{}
	executed []string
	errors   []string
	subFlows []types.SubFlowResult
}

func newFlowContext(ctx context.Context, flow *types.Flow, event *types.Event, parent types.Context) *flowContext {
	fc := &flowContext{
		Context: ctx,
		flow:    flow,
		event:   event,
		payload: event.Payload,
		visited: make(map[string]struct{}),
	}
	if parent == nil {
		fc.depth = 0
		fc.callStack = utils.NewPath(flow.ID)
	} else {
		fc.depth = parent.GetDepth() + 1
		callStack := utils.NewPath(parent.GetCallStack()...)
		fc.callStack = callStack.AddString(flow.ID)
	}

	fc.nodes = flow.NodeIndex()
	fc.outgoing = flow.EdgeIndex()
	return fc
}

func (fc *flowContext) GetFlowID() string {
	return fc.flow.ID
}

func (fc *flowContext) GetEventID() string {
	return fc.event.ID
}

func (fc *flowContext) GetEventName() string {
	return fc.event.Name
}

func (fc *flowContext) GetPayload() types.Data {
	return fc.payload
}

func (fc *flowContext) GetDepth() int {
	return fc.depth
}

func (fc *flowContext) GetCallStack() []string {
	return utils.NewPath(fc.callStack...)
}

func (fc *flowContext) node(id string) (*types.Node, bool) {
	n, exists := fc.nodes[id]
	return n, exists
}

func (fc *flowContext) edgesFrom(id string) []types.Edge {
	return fc.outgoing[id]
}

// visit marks nodeID as visited and reports whether it was the first visit.
func (fc *flowContext) visit(nodeID string) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if _, exists := fc.visited[nodeID]; exists {
		return false
	}
	fc.visited[nodeID] = struct{}{}
	fc.executed = append(fc.executed, nodeID)
	return true
}

func (fc *flowContext) addError(err error) {
	if err == nil {
		return
	}
	log.Warnf("%s flow %s: %v", fc.event.ID, fc.flow.ID, err)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.errors = append(fc.errors, err.Error())
}

func (fc *flowContext) addSubFlow(r types.SubFlowResult) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.subFlows = append(fc.subFlows, r)
}

func (fc *flowContext) result() *types.FlowExecutionResult {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	r := &types.FlowExecutionResult{
		FlowID:        fc.flow.ID,
		Success:       len(fc.errors) == 0,
		ExecutedNodes: make([]string, len(fc.executed)),
		Errors:        make([]string, len(fc.errors)),
	}
	copy(r.ExecutedNodes, fc.executed)
	copy(r.Errors, fc.errors)
	if len(fc.subFlows) > 0 {
		r.SubFlows = append([]types.SubFlowResult{}, fc.subFlows...)
	}
	return r
}
