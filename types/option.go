package types

import (
	"context"
	"net/http"
	"time"

	"github.com/mcuadros/go-defaults"
)

const (
	// MaxFlowDepth bounds nested CALL_FLOW invocations.
	MaxFlowDepth = 5
	// DefaultHTTPTimeout bounds a single outbound HTTP call.
	DefaultHTTPTimeout = 30 * time.Second
)

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOptions struct {
	/**
	 * Ctx is the base context of dispatched runs, they outlive the
	 * request that submitted them.
	 */
	Ctx context.Context
	/**
	 * default: 5
	 * a flow invoked at this depth is not executed.
	 */
	MaxFlowDepth int `default:"5"`
	/**
	 * default: 30s, hard timeout of HTTP actions and HTTP conditions.
	 */
	HTTPTimeout time.Duration `default:"30s"`
	/**
	 * default: 64
	 * Dispatch runs at most this many flows at once.
	 */
	MaxConcurrency int `default:"64"`
	/**
	 * default: 1MiB, response bodies are truncated to this size.
	 */
	MaxResponseBytes int64 `default:"1048576"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig

	HTTPClient *http.Client
	Mailer     Mailer
	// ErrorHandler receives failures of dispatched runs.
	ErrorHandler func(err error)
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type EngineOption func(*EngineOptions)

func WithContext(ctx context.Context) EngineOption {
	return func(opts *EngineOptions) {
		opts.Ctx = ctx
	}
}

func SetMaxFlowDepth(depth int) EngineOption {
	return func(opts *EngineOptions) {
		opts.MaxFlowDepth = depth
	}
}

func SetHTTPTimeout(timeout time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.HTTPTimeout = timeout
	}
}

func SetMaxConcurrency(concurrency int) EngineOption {
	return func(opts *EngineOptions) {
		opts.MaxConcurrency = concurrency
	}
}

func EnableMemStore() EngineOption {
	return func(opts *EngineOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to keep flows and logs in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.PostgresConfig = config
	}
}

func WithHTTPClient(client *http.Client) EngineOption {
	return func(opts *EngineOptions) {
		opts.HTTPClient = client
	}
}

func WithMailer(mailer Mailer) EngineOption {
	return func(opts *EngineOptions) {
		opts.Mailer = mailer
	}
}

func WithErrorHandler(handler func(err error)) EngineOption {
	return func(opts *EngineOptions) {
		opts.ErrorHandler = handler
	}
}
