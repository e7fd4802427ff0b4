package eventflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warriorguo/eventflow/types"
)

func TestNewFlowEngine(t *testing.T) {
	ctx := context.Background()

	var received int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	engine, err := NewFlowEngine(types.EnableMemStore(), types.SetMaxConcurrency(2))
	assert.Nil(t, err)

	flow := &types.Flow{
		ID:     "notify-sales",
		Name:   "notify sales",
		Active: true,
		Nodes: []*types.Node{
			types.NewTriggerNode("trigger", "lead.converted"),
			types.NewActionNode("notify", &types.HTTPRequestConfig{URL: server.URL}),
		},
		Edges: []types.Edge{{ID: "e1", Source: "trigger", Target: "notify"}},
	}
	assert.Nil(t, engine.Repository.SaveFlow(ctx, flow))

	results, err := engine.DispatchWait(ctx, types.NewEvent("lead.converted", types.Data{"lead": map[string]any{"id": 7}}))
	assert.Nil(t, err)
	assert.Len(t, results, 1)
	assert.True(t, results["notify-sales"].Success)
	assert.Equal(t, []string{"trigger", "notify"}, results["notify-sales"].ExecutedNodes)
	assert.Equal(t, 1, received)

	logs, err := engine.Repository.ListExecutionLogs(ctx, "notify-sales")
	assert.Nil(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, types.StatusSuccess, logs[0].Status)

	assert.Nil(t, engine.Close(ctx))
}

func TestNewFlowEngineWithBadPostgres(t *testing.T) {
	_, err := NewFlowEngine(types.WithPostgresConfig(&types.PostgresConfig{Host: "localhost", Port: -1}))
	assert.NotNil(t, err)
}
