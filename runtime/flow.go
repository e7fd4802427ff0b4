package runtime

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/types"
)

var (
	_ types.FlowEngine = &flow{}
)

// NewFlowEngine builds an engine over the given collaborators. A nil
// logger disables execution logs.
func NewFlowEngine(repo types.FlowRepository, logs types.ExecutionLogger, opts *types.EngineOptions) types.FlowEngine {
	return newFlow(repo, logs, opts)
}

type flow struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts   *types.EngineOptions
	repo   types.FlowRepository
	logs   types.ExecutionLogger
	mailer types.Mailer
	client *http.Client

	dispatcher *dispatcher
}

func newFlow(repo types.FlowRepository, logs types.ExecutionLogger, opts *types.EngineOptions) *flow {
	if opts == nil {
		opts = types.NewEngineOptions()
	}
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	f := &flow{opts: opts, repo: repo, logs: logs}
	f.ctx, f.cancel = context.WithCancel(opts.Ctx)

	if f.logs == nil {
		f.logs = nopExecutionLogger{}
	}
	f.mailer = opts.Mailer
	if f.mailer == nil {
		f.mailer = &logMailer{}
	}
	f.client = opts.HTTPClient
	if f.client == nil {
		f.client = &http.Client{}
	}
	handler := opts.ErrorHandler
	if handler == nil {
		handler = func(err error) {
			log.Errorf("dispatched run failed: %v", err)
		}
	}
	f.dispatcher = newDispatcher(opts.MaxConcurrency, handler)
	return f
}

func (f *flow) ValidateFlow(flow *types.Flow) []types.ValidationIssue {
	return validateFlow(flow)
}

func (f *flow) RenderFlow(flow *types.Flow, result *types.FlowExecutionResult) (string, error) {
	if flow == nil {
		return "", errors.NotValidf("nil flow")
	}
	return newFlowRenderer().generateDOT(flow, result)
}

/**
 * Dispatch submits one run per active flow of the event to the worker
 * pool. Runs use the engine context, not ctx, so they outlive the request
 * that received the event.
 */
func (f *flow) Dispatch(ctx context.Context, event *types.Event) error {
	ev, flows, err := f.matchFlows(ctx, event)
	if err != nil {
		return errors.Trace(err)
	}
	for _, fl := range flows {
		fl := fl
		err := f.dispatcher.submit(func() error {
			result, err := f.RunFlow(f.ctx, fl, ev)
			if err != nil {
				return errors.Annotatef(err, "event %s flow %s", ev.ID, fl.ID)
			}
			if !result.Success {
				return errors.Errorf("event %s flow %s failed: %v", ev.ID, fl.ID, result.Errors)
			}
			return nil
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	log.Debugf("%s dispatched event %s to %d flows, %d runs waiting", ev.ID, ev.Name, len(flows),
		f.dispatcher.waitingQueueSize())
	return nil
}

// DispatchWait runs every matched flow concurrently, each with its own context.
func (f *flow) DispatchWait(ctx context.Context, event *types.Event) (map[string]*types.FlowExecutionResult, error) {
	ev, flows, err := f.matchFlows(ctx, event)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*types.FlowExecutionResult, len(flows))
		retErr  error
	)
	for _, fl := range flows {
		wg.Add(1)
		go func(fl *types.Flow) {
			defer wg.Done()
			result, err := f.RunFlow(ctx, fl, ev)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				retErr = errors.Wrapf(retErr, err, "flow %s", fl.ID)
			}
			if result != nil {
				results[fl.ID] = result
			}
		}(fl)
	}
	wg.Wait()
	return results, retErr
}

// matchFlows returns a normalized copy of event with the active flows bound to its name.
func (f *flow) matchFlows(ctx context.Context, event *types.Event) (*types.Event, []*types.Flow, error) {
	if event == nil || event.Name == "" {
		return nil, nil, errors.NotValidf("event without name")
	}
	if f.repo == nil {
		return nil, nil, errors.NotSupportedf("dispatch without flow repository")
	}
	ev := *event
	ev.Normalize()

	flows, err := f.repo.ListActiveFlows(ctx, ev.Name)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "list flows of event %s", ev.Name)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return &ev, flows, nil
}

func (f *flow) Close(ctx context.Context) error {
	defer f.cancel()
	return f.dispatcher.stopWait(ctx)
}

type nopExecutionLogger struct{}

func (nopExecutionLogger) CreateExecutionLog(ctx context.Context, flowID, eventID string) (string, error) {
	return "", nil
}

func (nopExecutionLogger) UpdateExecutionLog(ctx context.Context, logID string, status types.ExecutionStatus,
	executedNodes []string, errMsg string) error {
	return nil
}
