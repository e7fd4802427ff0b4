package eventflow

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/runtime"
	"github.com/warriorguo/eventflow/store"
	"github.com/warriorguo/eventflow/store/mem"
	"github.com/warriorguo/eventflow/store/postgres"
	"github.com/warriorguo/eventflow/types"
)

// Engine is a FlowEngine together with the repository it reads flows from
// and writes execution logs to.
type Engine struct {
	types.FlowEngine

	Repository *runtime.StoreRepository
	store      store.Store
}

// NewFlowEngine creates a new flow engine with the given options
func NewFlowEngine(opts ...types.EngineOption) (*Engine, error) {
	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	s, err := newStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	repo := runtime.NewStoreRepository(s)
	return &Engine{
		FlowEngine: runtime.NewFlowEngine(repo, repo, options),
		Repository: repo,
		store:      s,
	}, nil
}

// PostgresConfig takes precedence over MemStore, the memory store is the default.
func newStore(options *types.EngineOptions) (store.Store, error) {
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}
		s, err := postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
		return s, nil
	}
	if !options.MemStore {
		log.Warnf("no store configured, flows and execution logs are kept in memory")
	}
	return mem.NewMemStore(), nil
}

// Close waits for the dispatched runs and releases the store.
func (e *Engine) Close(ctx context.Context) error {
	err := e.FlowEngine.Close(ctx)
	if closeErr := e.store.Close(); closeErr != nil {
		return errors.Wrap(err, closeErr)
	}
	return errors.Trace(err)
}
