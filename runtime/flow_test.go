package runtime

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/eventflow/types"
)

type errorCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *errorCollector) handle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCollector) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error{}, c.errs...)
}

func saveDispatchFlows(t *testing.T, repo *StoreRepository, failingURL string) {
	ctx := context.Background()
	inactive := chainFlow("inactive", "lead.converted", logNode("log"))
	inactive.Active = false
	for _, fl := range []*types.Flow{
		chainFlow("routing", "lead.converted", logNode("log")),
		chainFlow("notify", "lead.converted", types.NewActionNode("http", &types.HTTPRequestConfig{URL: failingURL})),
		chainFlow("other", "lead.created", logNode("log")),
		inactive,
	} {
		require.Nil(t, repo.SaveFlow(ctx, fl))
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	server, _ := newRecordingServer(t, http.StatusBadGateway)
	collector := &errorCollector{}
	f, repo := newTestEngine(t, types.WithErrorHandler(collector.handle))
	saveDispatchFlows(t, repo, server.URL)

	assert.Nil(t, f.Dispatch(ctx, leadEvent("whatsapp")))
	require.Nil(t, f.Close(ctx))

	for flowID, status := range map[string]types.ExecutionStatus{
		"routing": types.StatusSuccess,
		"notify":  types.StatusFailed,
	} {
		logs, err := repo.ListExecutionLogs(ctx, flowID)
		require.Nil(t, err)
		require.Len(t, logs, 1, flowID)
		assert.Equal(t, status, logs[0].Status, flowID)
	}
	for _, flowID := range []string{"other", "inactive"} {
		logs, err := repo.ListExecutionLogs(ctx, flowID)
		require.Nil(t, err)
		assert.Empty(t, logs, flowID)
	}

	errs := collector.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "flow notify failed")
	assert.Contains(t, errs[0].Error(), "returned status 502")

	err := f.Dispatch(ctx, leadEvent("whatsapp"))
	assert.True(t, errors.Is(err, errors.MethodNotAllowed))
	assert.Nil(t, f.Close(ctx))
}

func TestDispatchOutlivesRequestContext(t *testing.T) {
	f, repo := newTestEngine(t)
	require.Nil(t, repo.SaveFlow(context.Background(), chainFlow("routing", "lead.converted", logNode("log"))))

	ctx, cancel := context.WithCancel(context.Background())
	assert.Nil(t, f.Dispatch(ctx, leadEvent("whatsapp")))
	cancel()
	require.Nil(t, f.Close(context.Background()))

	logs, err := repo.ListExecutionLogs(context.Background(), "routing")
	require.Nil(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.StatusSuccess, logs[0].Status)
}

func TestDispatchInvalidEvent(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestEngine(t)

	assert.True(t, errors.Is(f.Dispatch(ctx, nil), errors.NotValid))
	assert.True(t, errors.Is(f.Dispatch(ctx, &types.Event{}), errors.NotValid))
	_, err := f.DispatchWait(ctx, &types.Event{})
	assert.NotNil(t, err)

	noRepo := newFlow(nil, nil, types.NewEngineOptions())
	defer noRepo.Close(ctx)
	assert.NotNil(t, noRepo.Dispatch(ctx, leadEvent("whatsapp")))
}

func TestDispatchWait(t *testing.T) {
	ctx := context.Background()
	server, requests := newRecordingServer(t, http.StatusBadGateway)
	f, repo := newTestEngine(t)
	saveDispatchFlows(t, repo, server.URL)

	event := &types.Event{Name: "lead.converted", Payload: types.Data{"lead": map[string]any{"source": "website"}}}
	results, err := f.DispatchWait(ctx, event)
	require.Nil(t, err)
	assert.Empty(t, event.ID)
	assert.True(t, event.ReceivedAt.IsZero())
	require.Len(t, results, 2)
	assert.True(t, results["routing"].Success)
	assert.False(t, results["notify"].Success)
	assert.Len(t, requests(), 1)

	routingLogs, err := repo.ListExecutionLogs(ctx, "routing")
	require.Nil(t, err)
	notifyLogs, err := repo.ListExecutionLogs(ctx, "notify")
	require.Nil(t, err)
	require.Len(t, routingLogs, 1)
	require.Len(t, notifyLogs, 1)
	assert.NotEmpty(t, routingLogs[0].EventID)
	assert.Equal(t, routingLogs[0].EventID, notifyLogs[0].EventID)

	results, err = f.DispatchWait(ctx, types.NewEvent("lead.unknown", nil))
	require.Nil(t, err)
	assert.Empty(t, results)
}

func TestCloseTimeout(t *testing.T) {
	release := make(chan struct{})
	f, _ := newTestEngine(t)
	require.Nil(t, f.dispatcher.submit(func() error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.Close(ctx)
	assert.NotNil(t, err)
	close(release)
}

func TestDispatcherRecoversPanic(t *testing.T) {
	collector := &errorCollector{}
	d := newDispatcher(2, collector.handle)
	require.Nil(t, d.submit(func() error { panic("bad task") }))
	require.Nil(t, d.submit(func() error { return nil }))
	require.Nil(t, d.stopWait(context.Background()))

	errs := collector.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "bad task")
}

func TestDispatcherSurvivesHandlerPanic(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	d := newDispatcher(1, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("handler broken")
	})
	for i := 0; i < 10; i++ {
		require.Nil(t, d.submit(func() error { return errors.New("run failed") }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, d.stopWait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, calls)
}
