package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

type NodeType string

const (
	NodeTrigger   NodeType = "trigger"
	NodeCondition NodeType = "condition"
	NodeAction    NodeType = "action"
	NodeEnd       NodeType = "end"
)

type Operator string

const (
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpContains    Operator = "CONTAINS"
	OpGreaterThan Operator = "GREATER_THAN"
	OpLessThan    Operator = "LESS_THAN"
)

type ConditionKind string

const (
	// ConditionField compares a value resolved from the event payload.
	ConditionField ConditionKind = "FIELD"
	// ConditionHTTPRequest compares a value resolved from an HTTP response.
	ConditionHTTPRequest ConditionKind = "HTTP_REQUEST"
)

type ActionType string

const (
	ActionLog         ActionType = "LOG"
	ActionHTTPRequest ActionType = "HTTP_REQUEST"
	ActionSendEmail   ActionType = "SEND_EMAIL"
	ActionCallFlow    ActionType = "CALL_FLOW"
)

// Outgoing edge handles of a condition node.
const (
	HandleYes = "yes"
	HandleNo  = "no"
)

// Flow is an authored graph. The engine treats it as read-only for a run.
type Flow struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Active bool    `json:"active"`
	Nodes  []*Node `json:"nodes"`
	Edges  []Edge  `json:"edges"`
}

// NodeIndex maps node IDs to nodes, nil nodes are skipped.
func (f *Flow) NodeIndex() map[string]*Node {
	nodes := make(map[string]*Node, len(f.Nodes))
	for _, n := range f.Nodes {
		if n != nil {
			nodes[n.ID] = n
		}
	}
	return nodes
}

// Trigger returns the first trigger node of the flow.
func (f *Flow) Trigger() (*Node, bool) {
	for _, n := range f.Nodes {
		if n != nil && n.Type == NodeTrigger {
			return n, true
		}
	}
	return nil, false
}

// TriggerEvent returns the event name the flow is bound to, or "".
func (f *Flow) TriggerEvent() string {
	n, exists := f.Trigger()
	if !exists {
		return ""
	}
	if td, ok := n.Data.(*TriggerData); ok && td != nil {
		return td.Event
	}
	return ""
}

// EdgeIndex groups edges by source node, each group keeps edge-list order.
func (f *Flow) EdgeIndex() map[string][]Edge {
	outgoing := make(map[string][]Edge)
	for _, e := range f.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}
	return outgoing
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeData is the per-type payload of a node: one of *TriggerData,
// *ConditionData, *ActionData or *EndData.
type NodeData interface {
	NodeType() NodeType
}

type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

type TriggerData struct {
	Event string `json:"event"`
}

func (*TriggerData) NodeType() NodeType { return NodeTrigger }

// ConditionData is a binary decision. Value is a string or a number.
type ConditionData struct {
	Kind     ConditionKind      `json:"conditionType,omitempty"`
	Field    string             `json:"field"`
	Operator Operator           `json:"operator"`
	Value    any                `json:"value"`
	Request  *HTTPRequestConfig `json:"request,omitempty"`
}

func (*ConditionData) NodeType() NodeType { return NodeCondition }

type ActionData struct {
	Type   ActionType   `json:"type"`
	Config ActionConfig `json:"config,omitempty"`
}

func (*ActionData) NodeType() NodeType { return NodeAction }

type EndData struct{}

func (*EndData) NodeType() NodeType { return NodeEnd }

// ActionConfig is one of *LogConfig, *HTTPRequestConfig, *EmailConfig or *CallFlowConfig.
type ActionConfig interface {
	ActionType() ActionType
}

type LogConfig struct {
	Message string `json:"message"`
}

func (*LogConfig) ActionType() ActionType { return ActionLog }

type HTTPRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

func (*HTTPRequestConfig) ActionType() ActionType { return ActionHTTPRequest }

type EmailConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

func (*EmailConfig) ActionType() ActionType { return ActionSendEmail }

type CallFlowConfig struct {
	FlowID string         `json:"flowId"`
	Data   map[string]any `json:"data,omitempty"`
}

func (*CallFlowConfig) ActionType() ActionType { return ActionCallFlow }

func NewTriggerNode(id, event string) *Node {
	return &Node{ID: id, Type: NodeTrigger, Data: &TriggerData{Event: event}}
}

func NewConditionNode(id string, cond *ConditionData) *Node {
	return &Node{ID: id, Type: NodeCondition, Data: cond}
}

func NewActionNode(id string, config ActionConfig) *Node {
	return &Node{ID: id, Type: NodeAction, Data: &ActionData{Type: config.ActionType(), Config: config}}
}

func NewEndNode(id string) *Node {
	return &Node{ID: id, Type: NodeEnd, Data: &EndData{}}
}

type rawNode struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON selects the data variant from the node type. Unknown types
// keep their name and carry no data, they are reported when visited.
func (n *Node) UnmarshalJSON(b []byte) error {
	raw := rawNode{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Trace(err)
	}
	n.ID = raw.ID
	n.Type = NodeType(strings.ToLower(raw.Type))

	var data NodeData
	switch n.Type {
	case NodeTrigger:
		data = &TriggerData{}
	case NodeCondition:
		data = &ConditionData{}
	case NodeAction:
		data = &ActionData{}
	case NodeEnd:
		n.Data = &EndData{}
		return nil
	default:
		n.Type = NodeType(raw.Type)
		n.Data = nil
		return nil
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			return errors.Annotatef(err, "node %s data", raw.ID)
		}
	}
	n.Data = data
	return nil
}

type rawCondition struct {
	Kind     string             `json:"conditionType"`
	Field    string             `json:"field"`
	Operator string             `json:"operator"`
	Value    any                `json:"value"`
	Request  *HTTPRequestConfig `json:"request"`
}

func (c *ConditionData) UnmarshalJSON(b []byte) error {
	raw := rawCondition{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Trace(err)
	}
	c.Kind = ConditionKind(strings.ToUpper(raw.Kind))
	c.Field = raw.Field
	c.Operator = Operator(strings.ToUpper(raw.Operator))
	c.Value = raw.Value
	c.Request = raw.Request
	return nil
}

type rawAction struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the config variant of a known action type. A known
// type without config gets an empty config so required fields are reported.
func (a *ActionData) UnmarshalJSON(b []byte) error {
	raw := rawAction{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Trace(err)
	}
	a.Type = ActionType(strings.ToUpper(raw.Type))

	var config ActionConfig
	switch a.Type {
	case ActionLog:
		config = &LogConfig{}
	case ActionHTTPRequest:
		config = &HTTPRequestConfig{}
	case ActionSendEmail:
		config = &EmailConfig{}
	case ActionCallFlow:
		config = &CallFlowConfig{}
	default:
		a.Type = ActionType(raw.Type)
		a.Config = nil
		return nil
	}
	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, config); err != nil {
			return errors.Annotatef(err, "action %s config", raw.Type)
		}
	}
	a.Config = config
	return nil
}

// Event is an inbound webhook-style event.
type Event struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Payload    Data      `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func NewEvent(name string, payload Data) *Event {
	e := &Event{Name: name, Payload: payload}
	e.Normalize()
	return e
}

// Normalize fills the ID, payload and receive time when they are absent.
func (e *Event) Normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Payload == nil {
		e.Payload = Data{}
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
}

func ParseFlow(b []byte) (*Flow, error) {
	f := &Flow{}
	if err := json.Unmarshal(b, f); err != nil {
		return nil, errors.Annotatef(err, "parse flow")
	}
	return f, nil
}
