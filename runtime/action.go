package runtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/types"
	"github.com/warriorguo/eventflow/utils"
)

var (
	_ types.Mailer = &logMailer{}
)

/**
 * runAction dispatches one action node. Side-effect failures (HTTP, email)
 * are recorded on fc here and do not surface as a return value; the
 * returned error is for failures the caller must record itself: a
 * misconfigured CALL_FLOW, an unknown action type or missing data.
 */
func (f *flow) runAction(fc *flowContext, node *types.Node) error {
	action, ok := node.Data.(*types.ActionData)
	if !ok || action == nil {
		return types.NewValidationErrorf("action node %s has no action data", node.ID)
	}

	switch action.Type {
	case types.ActionLog:
		config, _ := action.Config.(*types.LogConfig)
		f.actionLog(fc, node, config)
		return nil

	case types.ActionHTTPRequest:
		config, _ := action.Config.(*types.HTTPRequestConfig)
		if err := f.actionHTTP(fc, node, config); err != nil {
			f.recordActionFailure(fc, action.Type, err)
		}
		return nil

	case types.ActionSendEmail:
		config, _ := action.Config.(*types.EmailConfig)
		if err := f.actionEmail(fc, node, config); err != nil {
			f.recordActionFailure(fc, action.Type, err)
		}
		return nil

	case types.ActionCallFlow:
		config, _ := action.Config.(*types.CallFlowConfig)
		return f.actionCallFlow(fc, node, config)
	}
	actionFailures.WithLabelValues(string(action.Type)).Inc()
	return types.NewExecutionErrorf("action node %s: unknown action type %s", node.ID, action.Type)
}

func (f *flow) recordActionFailure(fc *flowContext, actionType types.ActionType, err error) {
	actionFailures.WithLabelValues(string(actionType)).Inc()
	fc.addError(err)
}

func (f *flow) actionLog(fc *flowContext, node *types.Node, config *types.LogConfig) {
	message := ""
	if config != nil {
		message = fc.payload.Render(config.Message)
	}
	if message == "" {
		message = "log action " + node.ID + " reached"
	}
	log.WithFields(log.Fields{
		"flow_id":  fc.flow.ID,
		"node_id":  node.ID,
		"event":    fc.event.Name,
		"event_id": fc.event.ID,
		"depth":    fc.depth,
	}).Info(message)
}

func (f *flow) actionHTTP(fc *flowContext, node *types.Node, config *types.HTTPRequestConfig) error {
	if config == nil || strings.TrimSpace(config.URL) == "" {
		return types.NewValidationErrorf("action node %s: HTTP_REQUEST requires a url", node.ID)
	}
	resp, err := f.doHTTP(fc, config, http.MethodPost)
	if err != nil {
		return errors.Annotatef(err, "action node %s", node.ID)
	}
	if !resp.ok() {
		return types.NewExecutionErrorf("action node %s: HTTP request to %s returned status %d: %s",
			node.ID, fc.payload.Render(config.URL), resp.StatusCode, truncate(string(resp.Body), maxErrorBodyLen))
	}
	log.Debugf("%s flow %s: action node %s HTTP status %d", fc.event.ID, fc.flow.ID, node.ID, resp.StatusCode)
	return nil
}

func (f *flow) actionEmail(fc *flowContext, node *types.Node, config *types.EmailConfig) error {
	if config == nil || strings.TrimSpace(config.To) == "" {
		return types.NewValidationErrorf("action node %s: SEND_EMAIL requires a recipient", node.ID)
	}
	msg := types.EmailMessage{
		To:      fc.payload.Render(config.To),
		Subject: fc.payload.Render(config.Subject),
		Body:    fc.payload.Render(config.Body),
	}
	if err := f.mailer.Send(fc, msg); err != nil {
		return types.NewExecutionError(errors.Annotatef(err, "action node %s: send email to %s", node.ID, msg.To))
	}
	return nil
}

/**
 * actionCallFlow runs another flow as a sub-flow of fc. The sub-flow gets
 * the current payload overlaid with the configured data, the parent call
 * stack and a fresh visited set. Its outcome is logged and kept in
 * fc.subFlows, it is never an error of the parent.
 * An inactive target is skipped without error.
 */
func (f *flow) actionCallFlow(fc *flowContext, node *types.Node, config *types.CallFlowConfig) error {
	if config == nil || strings.TrimSpace(config.FlowID) == "" {
		return types.NewValidationErrorf("action node %s: CALL_FLOW requires a flowId", node.ID)
	}
	if f.repo == nil {
		return types.NewValidationErrorf("action node %s: CALL_FLOW without flow repository", node.ID)
	}
	target, err := f.repo.FindFlowByID(fc, config.FlowID)
	if err != nil {
		return types.NewExecutionError(errors.Annotatef(err, "action node %s: find flow %s", node.ID, config.FlowID))
	}
	if target == nil {
		return types.NewValidationErrorf("action node %s: CALL_FLOW target flow %s not found", node.ID, config.FlowID)
	}
	if !target.Active {
		log.Warnf("%s flow %s: action node %s skips inactive flow %s", fc.event.ID, fc.flow.ID, node.ID, target.ID)
		return nil
	}

	extra, _ := renderConfigValue(fc.payload, config.Data).(map[string]any)
	event := &types.Event{
		ID:         fc.event.ID,
		Name:       fc.event.Name,
		Payload:    fc.payload.Merge(extra),
		ReceivedAt: fc.event.ReceivedAt,
	}

	logID, err := f.logs.CreateExecutionLog(fc, target.ID, event.ID)
	if err != nil {
		log.Errorf("%s flow %s: create execution log of sub-flow %s failed: %v", fc.event.ID, fc.flow.ID, target.ID, err)
	}
	result := f.ExecuteFlow(fc, target, event, fc)
	if logID != "" {
		if err := f.finishLog(fc, logID, result); err != nil {
			log.Errorf("%s flow %s: update execution log %s of sub-flow %s failed: %v",
				fc.event.ID, fc.flow.ID, logID, target.ID, err)
		}
	}

	log.Infof("%s flow %s: sub-flow %s finished, success=%v errors=%d",
		fc.event.ID, fc.flow.ID, target.ID, result.Success, len(result.Errors))
	fc.addSubFlow(types.SubFlowResult{
		NodeID:     node.ID,
		FlowID:     target.ID,
		LogID:      logID,
		Success:    result.Success,
		ErrorCount: len(result.Errors),
		Errors:     result.Errors,
		SubFlows:   result.SubFlows,
	})
	return nil
}

func renderConfigValue(payload types.Data, v any) any {
	return utils.RenderValue(v, map[string]any(payload))
}

// logMailer is the default mailer, it accepts every message and only logs it.
type logMailer struct{}

func (m *logMailer) Send(ctx context.Context, msg types.EmailMessage) error {
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email accepted for delivery")
	return nil
}
