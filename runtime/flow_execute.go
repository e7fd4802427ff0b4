package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/types"
	"github.com/warriorguo/eventflow/utils"
)

/**
 * ExecuteFlow is the traversal state machine of one flow invocation:
 *   Start -> depth/loop guards -> validate -> RunTrigger -> RunGraph -> Finished
 * A sub-flow call re-enters ExecuteFlow with the caller as parent, it never
 * loops back to Start within the same context.
 */
func (f *flow) ExecuteFlow(ctx context.Context, flow *types.Flow, event *types.Event, parent types.Context) (result *types.FlowExecutionResult) {
	if flow == nil {
		return &types.FlowExecutionResult{
			Errors: []string{types.NewValidationErrorf("flow is nil").Error()},
		}
	}
	if ctx == nil {
		ctx = f.ctx
	}
	ev := &types.Event{}
	if event != nil {
		*ev = *event
	}
	ev.Normalize()

	fc := newFlowContext(ctx, flow, ev, parent)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			fc.addError(types.NewExecutionErrorf("flow %s aborted: panic: %v", flow.ID, r))
		}
		result = fc.result()
		observeRun(result, fc.depth, time.Since(start))
	}()

	f.runFlow(fc)
	return
}

func (f *flow) runFlow(fc *flowContext) {
	if fc.depth >= f.opts.MaxFlowDepth {
		fc.addError(types.NewRecursionErrorf("max flow depth %d exceeded, call stack: %s",
			f.opts.MaxFlowDepth, strings.Join(fc.callStack, " -> ")))
		return
	}
	if utils.CountOf(fc.callStack, fc.flow.ID) > 1 {
		fc.addError(types.NewRecursionErrorf("loop detected: flow %s is already running, call stack: %s",
			fc.flow.ID, strings.Join(fc.callStack, " -> ")))
		return
	}

	if issues := validateFlow(fc.flow); len(issues) > 0 {
		for _, issue := range issues {
			fc.addError(types.NewValidationErrorf("invalid flow %s: %s", fc.flow.ID, issue.Message))
		}
		return
	}

	trigger, _ := fc.flow.Trigger()
	td, ok := trigger.Data.(*types.TriggerData)
	if !ok || td == nil {
		fc.addError(types.NewValidationErrorf("trigger node %s has no trigger data", trigger.ID))
		return
	}
	// a sub-flow is invoked by its caller, not by the event its trigger names
	if fc.depth == 0 && td.Event != fc.event.Name {
		fc.addError(types.NewExecutionErrorf("flow %s skipped: trigger event %q does not match event %q",
			fc.flow.ID, td.Event, fc.event.Name))
		return
	}

	log.Debugf("%s flow %s: running at depth %d", fc.event.ID, fc.flow.ID, fc.depth)
	f.visitNode(fc, trigger.ID)
}

// RunFlow is the orchestrating wrapper of ExecuteFlow for a top level run.
func (f *flow) RunFlow(ctx context.Context, flow *types.Flow, event *types.Event) (*types.FlowExecutionResult, error) {
	if flow == nil {
		return nil, errors.NotValidf("nil flow")
	}
	if event == nil {
		return nil, errors.NotValidf("nil event")
	}
	// the log and the run share one event ID, the caller's event is left as is
	ev := *event
	ev.Normalize()

	logID, err := f.logs.CreateExecutionLog(ctx, flow.ID, ev.ID)
	if err != nil {
		return nil, errors.Annotatef(err, "create execution log of flow %s", flow.ID)
	}
	result := f.ExecuteFlow(ctx, flow, &ev, nil)
	if err := f.finishLog(ctx, logID, result); err != nil {
		return result, errors.Annotatef(err, "update execution log %s", logID)
	}
	return result, nil
}

func (f *flow) finishLog(ctx context.Context, logID string, result *types.FlowExecutionResult) error {
	status := types.StatusSuccess
	if !result.Success {
		status = types.StatusFailed
	}
	return errors.Trace(f.logs.UpdateExecutionLog(ctx, logID, status, result.ExecutedNodes, strings.Join(result.Errors, "; ")))
}

func describeNode(n *types.Node) string {
	return fmt.Sprintf("%s node %s", n.Type, n.ID)
}
