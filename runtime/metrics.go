package runtime

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warriorguo/eventflow/types"
)

var (
	flowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_flow_runs_total",
		Help: "Flow invocations by outcome and depth (0 is a top level run).",
	}, []string{"status", "depth"})

	flowRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventflow_flow_run_duration_seconds",
		Help:    "Wall time of one flow invocation, sub-flows included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	nodesVisited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_nodes_visited_total",
		Help: "Nodes executed by node type.",
	}, []string{"type"})

	actionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_action_failures_total",
		Help: "Failed actions by action type.",
	}, []string{"action"})
)

func observeRun(result *types.FlowExecutionResult, depth int, elapsed time.Duration) {
	status := string(types.StatusSuccess)
	if !result.Success {
		status = string(types.StatusFailed)
	}
	flowRuns.WithLabelValues(status, strconv.Itoa(depth)).Inc()
	flowRunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
