package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/warriorguo/eventflow/store/mem"
	"github.com/warriorguo/eventflow/types"
)

func newTestEngine(t *testing.T, opts ...types.EngineOption) (*flow, *StoreRepository) {
	options := types.NewEngineOptions()
	options.MaxConcurrency = 4
	for _, opt := range opts {
		opt(options)
	}
	repo := NewStoreRepository(mem.NewMemStore())
	f := newFlow(repo, repo, options)
	t.Cleanup(func() {
		f.Close(context.Background())
	})
	return f, repo
}

// chainFlow links a trigger on event and nodes one after another.
func chainFlow(id, event string, nodes ...*types.Node) *types.Flow {
	fl := &types.Flow{
		ID:     id,
		Name:   id,
		Active: true,
		Nodes:  []*types.Node{types.NewTriggerNode("trigger", event)},
	}
	prev := "trigger"
	for i, n := range nodes {
		fl.Nodes = append(fl.Nodes, n)
		fl.Edges = append(fl.Edges, types.Edge{ID: fmt.Sprintf("e%d", i+1), Source: prev, Target: n.ID})
		prev = n.ID
	}
	return fl
}

func logNode(id string) *types.Node {
	return types.NewActionNode(id, &types.LogConfig{Message: "reached " + id})
}

func callFlowNode(id, flowID string) *types.Node {
	return types.NewActionNode(id, &types.CallFlowConfig{FlowID: flowID})
}

func leadEvent(source string) *types.Event {
	return types.NewEvent("lead.converted", types.Data{
		"lead": map[string]any{"name": "Ana", "source": source, "budget": 25000},
	})
}

type captureMailer struct {
	mu   sync.Mutex
	sent []types.EmailMessage
	err  error
}

func (m *captureMailer) Send(ctx context.Context, msg types.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []types.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.EmailMessage{}, m.sent...)
}

type failingRepository struct {
	types.FlowRepository
}

func (failingRepository) FindFlowByID(ctx context.Context, id string) (*types.Flow, error) {
	return nil, errors.New("repository unavailable")
}
