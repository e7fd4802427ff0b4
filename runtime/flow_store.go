package runtime

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/store"
	"github.com/warriorguo/eventflow/types"
	"github.com/warriorguo/eventflow/utils"
)

const (
	FlowPath         = "/flow/"
	ExecutionLogPath = "/execution_log/"
)

var (
	_ types.FlowRepository  = &StoreRepository{}
	_ types.ExecutionLogger = &StoreRepository{}
)

// StoreRepository keeps flow definitions and execution logs as JSON in a store.Store.
type StoreRepository struct {
	store store.Store
}

func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func (r *StoreRepository) SaveFlow(ctx context.Context, flow *types.Flow) error {
	if flow == nil || flow.ID == "" {
		return errors.NotValidf("flow without id")
	}
	b, err := utils.Serialize(flow)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.store.Set(ctx, FlowPath, flow.ID, b))
}

func (r *StoreRepository) RemoveFlow(ctx context.Context, id string) error {
	return errors.Trace(r.store.Remove(ctx, FlowPath, id))
}

func (r *StoreRepository) FindFlowByID(ctx context.Context, id string) (*types.Flow, error) {
	b, err := r.store.Get(ctx, FlowPath, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}
	flow, err := types.ParseFlow(b)
	if err != nil {
		return nil, errors.Annotatef(err, "flow %s", id)
	}
	return flow, nil
}

// ListActiveFlows returns the active flows whose trigger names eventName, ordered by ID.
func (r *StoreRepository) ListActiveFlows(ctx context.Context, eventName string) ([]*types.Flow, error) {
	ids := make([]string, 0)
	err := r.store.List(ctx, FlowPath, func(key string) bool {
		ids = append(ids, key)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Strings(ids)

	flows := make([]*types.Flow, 0, len(ids))
	for _, id := range ids {
		flow, err := r.FindFlowByID(ctx, id)
		if err != nil {
			log.Errorf("load flow %s from store failed: %v", id, err)
			continue
		}
		if flow == nil || !flow.Active || flow.TriggerEvent() != eventName {
			continue
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (r *StoreRepository) CreateExecutionLog(ctx context.Context, flowID, eventID string) (string, error) {
	record := &types.ExecutionLog{
		ID:        uuid.NewString(),
		FlowID:    flowID,
		EventID:   eventID,
		Status:    types.StatusRunning,
		StartedAt: time.Now(),
	}
	if err := r.saveLog(ctx, record); err != nil {
		return "", errors.Trace(err)
	}
	return record.ID, nil
}

func (r *StoreRepository) UpdateExecutionLog(ctx context.Context, logID string, status types.ExecutionStatus,
	executedNodes []string, errMsg string) error {
	record, err := r.GetExecutionLog(ctx, logID)
	if err != nil {
		return errors.Trace(err)
	}
	record.Status = status
	record.ExecutedNodes = executedNodes
	record.Error = errMsg
	record.FinishedAt = time.Now()
	return errors.Trace(r.saveLog(ctx, record))
}

func (r *StoreRepository) GetExecutionLog(ctx context.Context, logID string) (*types.ExecutionLog, error) {
	b, err := r.store.Get(ctx, ExecutionLogPath, logID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("execution log %s", logID)
	}
	record := &types.ExecutionLog{}
	if err := utils.Unserialize(b, record); err != nil {
		return nil, errors.Annotatef(err, "execution log %s", logID)
	}
	return record, nil
}

// ListExecutionLogs returns the logs of flowID ordered by start time.
func (r *StoreRepository) ListExecutionLogs(ctx context.Context, flowID string) ([]*types.ExecutionLog, error) {
	ids := make([]string, 0)
	err := r.store.List(ctx, ExecutionLogPath, func(key string) bool {
		ids = append(ids, key)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	records := make([]*types.ExecutionLog, 0)
	for _, id := range ids {
		record, err := r.GetExecutionLog(ctx, id)
		if err != nil {
			log.Errorf("load execution log %s from store failed: %v", id, err)
			continue
		}
		if record.FlowID == flowID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })
	return records, nil
}

func (r *StoreRepository) saveLog(ctx context.Context, record *types.ExecutionLog) error {
	b, err := utils.Serialize(record)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.store.Set(ctx, ExecutionLogPath, record.ID, b))
}
