package types

import (
	"context"
	"time"
)

type FlowEngine interface {
	/**
	 * ExecuteFlow walks the flow graph for one event. parent is nil for a
	 * top level run and the calling context for a sub-flow invocation.
	 * It never panics and never returns an error: every failure ends up
	 * in FlowExecutionResult.Errors.
	 */
	ExecuteFlow(ctx context.Context, flow *Flow, event *Event, parent Context) *FlowExecutionResult
	/**
	 * RunFlow wraps ExecuteFlow with an execution log record.
	 * The returned error only reports execution log failures.
	 */
	RunFlow(ctx context.Context, flow *Flow, event *Event) (*FlowExecutionResult, error)
	/**
	 * Dispatch resolves the active flows of the event and hands each of
	 * them to the worker pool. It returns once the runs are submitted,
	 * failures of the runs go to EngineOptions.ErrorHandler.
	 */
	Dispatch(ctx context.Context, event *Event) error
	// DispatchWait runs every active flow of the event and waits for all results, keyed by flow ID.
	DispatchWait(ctx context.Context, event *Event) (map[string]*FlowExecutionResult, error)

	ValidateFlow(flow *Flow) []ValidationIssue
	/**
	 * RenderFlow will return the DOT string of the flow graph.
	 * Nodes executed in result are highlighted, result may be nil.
	 */
	RenderFlow(flow *Flow, result *FlowExecutionResult) (string, error)
	/**
	 * close the engine, waits for the dispatched runs to finish.
	 */
	Close(ctx context.Context) error
}

// Context is the per-invocation execution context visible to collaborators.
type Context interface {
	context.Context

	GetFlowID() string
	GetEventID() string
	GetEventName() string
	GetPayload() Data
	// GetDepth equals len(GetCallStack())-1.
	GetDepth() int
	GetCallStack() []string
}

type FlowExecutionResult struct {
	FlowID        string          `json:"flowId"`
	Success       bool            `json:"success"`
	ExecutedNodes []string        `json:"executedNodes"`
	Errors        []string        `json:"errors"`
	SubFlows      []SubFlowResult `json:"subFlows,omitempty"`
}

// SubFlowResult records a CALL_FLOW invocation. Its errors are not part
// of the parent's errors.
type SubFlowResult struct {
	NodeID     string          `json:"nodeId"`
	FlowID     string          `json:"flowId"`
	LogID      string          `json:"logId,omitempty"`
	Success    bool            `json:"success"`
	ErrorCount int             `json:"errorCount"`
	Errors     []string        `json:"errors,omitempty"`
	SubFlows   []SubFlowResult `json:"subFlows,omitempty"`
}

type ValidationIssue struct {
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	return i.Message
}

type ExecutionStatus string

const (
	StatusRunning ExecutionStatus = "RUNNING"
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
)

type ExecutionLog struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flowId"`
	EventID       string          `json:"eventId"`
	Status        ExecutionStatus `json:"status"`
	ExecutedNodes []string        `json:"executedNodes,omitempty"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	FinishedAt    time.Time       `json:"finishedAt,omitempty"`
}

type FlowRepository interface {
	// FindFlowByID returns nil without error when the flow does not exist.
	FindFlowByID(ctx context.Context, id string) (*Flow, error)
	ListActiveFlows(ctx context.Context, eventName string) ([]*Flow, error)
	SaveFlow(ctx context.Context, flow *Flow) error
}

type ExecutionLogger interface {
	CreateExecutionLog(ctx context.Context, flowID, eventID string) (string, error)
	UpdateExecutionLog(ctx context.Context, logID string, status ExecutionStatus, executedNodes []string, errMsg string) error
}

type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer accepts an email for delivery. Acceptance is not delivery.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}
