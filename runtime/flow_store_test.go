package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/eventflow/store/mem"
	"github.com/warriorguo/eventflow/types"
)

func TestStoreRepositoryFlows(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreRepository(mem.NewMemStore())

	fl, err := repo.FindFlowByID(ctx, "missing")
	assert.Nil(t, err)
	assert.Nil(t, fl)

	assert.NotNil(t, repo.SaveFlow(ctx, nil))
	assert.NotNil(t, repo.SaveFlow(ctx, &types.Flow{}))

	inactive := chainFlow("c-inactive", "lead.converted", logNode("log"))
	inactive.Active = false
	for _, fl := range []*types.Flow{
		chainFlow("b-routing", "lead.converted", logNode("log")),
		chainFlow("a-scoring", "lead.converted", types.NewActionNode("mail", &types.EmailConfig{To: "{{lead.owner}}"})),
		chainFlow("d-other", "lead.created", logNode("log")),
		inactive,
	} {
		require.Nil(t, repo.SaveFlow(ctx, fl))
	}

	loaded, err := repo.FindFlowByID(ctx, "a-scoring")
	require.Nil(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, chainFlow("a-scoring", "lead.converted",
		types.NewActionNode("mail", &types.EmailConfig{To: "{{lead.owner}}"})), loaded)

	flows, err := repo.ListActiveFlows(ctx, "lead.converted")
	require.Nil(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "a-scoring", flows[0].ID)
	assert.Equal(t, "b-routing", flows[1].ID)

	require.Nil(t, repo.RemoveFlow(ctx, "a-scoring"))
	flows, err = repo.ListActiveFlows(ctx, "lead.converted")
	require.Nil(t, err)
	require.Len(t, flows, 1)

	flows, err = repo.ListActiveFlows(ctx, "lead.unknown")
	require.Nil(t, err)
	assert.Empty(t, flows)
}

func TestStoreRepositoryExecutionLogs(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreRepository(mem.NewMemStore())

	first, err := repo.CreateExecutionLog(ctx, "lead-routing", "event-1")
	require.Nil(t, err)
	time.Sleep(time.Millisecond)
	second, err := repo.CreateExecutionLog(ctx, "lead-routing", "event-2")
	require.Nil(t, err)
	_, err = repo.CreateExecutionLog(ctx, "other", "event-3")
	require.Nil(t, err)
	assert.NotEqual(t, first, second)

	record, err := repo.GetExecutionLog(ctx, first)
	require.Nil(t, err)
	assert.Equal(t, types.StatusRunning, record.Status)
	assert.Equal(t, "event-1", record.EventID)
	assert.True(t, record.FinishedAt.IsZero())

	require.Nil(t, repo.UpdateExecutionLog(ctx, first, types.StatusFailed, []string{"trigger"}, "boom"))
	record, err = repo.GetExecutionLog(ctx, first)
	require.Nil(t, err)
	assert.Equal(t, types.StatusFailed, record.Status)
	assert.Equal(t, []string{"trigger"}, record.ExecutedNodes)
	assert.Equal(t, "boom", record.Error)
	assert.False(t, record.FinishedAt.IsZero())

	logs, err := repo.ListExecutionLogs(ctx, "lead-routing")
	require.Nil(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, first, logs[0].ID)
	assert.Equal(t, second, logs[1].ID)

	_, err = repo.GetExecutionLog(ctx, "missing")
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.NotNil(t, repo.UpdateExecutionLog(ctx, "missing", types.StatusSuccess, nil, ""))
}

func TestStoreRepositoryStoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreRepository(mem.NewMemStoreWithErrHandler(func() error { return errors.New("store down") }))

	_, err := repo.FindFlowByID(ctx, "a")
	assert.NotNil(t, err)
	_, err = repo.ListActiveFlows(ctx, "lead.converted")
	assert.NotNil(t, err)
	_, err = repo.CreateExecutionLog(ctx, "a", "event")
	assert.NotNil(t, err)

	f := newFlow(repo, repo, types.NewEngineOptions())
	defer f.Close(ctx)
	_, err = f.RunFlow(ctx, chainFlow("a", "lead.converted"), leadEvent("whatsapp"))
	assert.NotNil(t, err)
	_, err = f.DispatchWait(ctx, leadEvent("whatsapp"))
	assert.NotNil(t, err)
}
