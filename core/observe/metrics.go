// Package observe implements spec.md §4.10 (C10 Observers): pure
// event-bus subscribers that never hold a reference to the engine itself.
// MetricsObserver is grounded on dshills-langgraph-go/graph/metrics.go's
// PrometheusMetrics (gauges for inflight/queue depth, a histogram for step
// latency, counters for retries), generalized here with node_type and
// node_id labels (node_type is always recorded empty, since node events
// carry no node type) plus a running LLM-usage total and critical-path
// derivation that the teacher's metrics file has no equivalent of.
package observe

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/event"
)

// NodeMetric is the per-node record MetricsObserver accumulates for one
// execution.
type NodeMetric struct {
	NodeType   core.NodeType
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
	TokenUsage core.LLMUsage
	Error      string
}

// ExecutionMetrics is the snapshot GetExecutionMetrics/GetMetricsSummary
// return for one execution_id.
type ExecutionMetrics struct {
	ExecutionID string
	Nodes       map[core.NodeID]NodeMetric
	LLMUsage    core.LLMUsage
}

// MetricsSummary is a condensed view suitable for the CLI's `metrics`
// subcommand and the `results` command's llm_usage field.
type MetricsSummary struct {
	ExecutionID    string
	NodeCount      int
	ErrorCount     int
	LLMUsage       core.LLMUsage
	CriticalPathMs int64
	CriticalPath   []core.NodeID
}

type executionMetrics struct {
	mu    sync.RWMutex
	nodes map[core.NodeID]*NodeMetric
	usage core.LLMUsage
}

// MetricsObserver maintains {execution_id -> ExecutionMetrics} and, when a
// Prometheus registerer is supplied, mirrors the same data as
// langgraph-style gauges/histograms/counters namespaced "dipeo_" instead
// of "langgraph_".
type MetricsObserver struct {
	mu  sync.RWMutex
	byExec map[string]*executionMetrics

	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	inflight    prometheus.Gauge

	subMu      sync.Mutex
	subscribed map[string]bool
}

// NewMetricsObserver constructs a MetricsObserver. registerer may be nil,
// in which case only the in-memory accounting (GetExecutionMetrics etc.)
// is available and no Prometheus series are registered.
func NewMetricsObserver(registerer prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		byExec:     make(map[string]*executionMetrics),
		subscribed: make(map[string]bool),
	}
	if registerer == nil {
		return m
	}
	factory := promauto.With(registerer)

	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dipeo",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds, from node_started to node_completed/node_error",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"execution_id", "node_id", "node_type", "status"})

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dipeo",
		Name:      "retries_total",
		Help:      "Cumulative node_error events per node",
	}, []string{"execution_id", "node_id", "reason"})

	m.llmTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dipeo",
		Name:      "llm_tokens_total",
		Help:      "Cumulative LLM token usage observed in node_completed payloads",
	}, []string{"execution_id", "node_id", "kind"})

	m.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dipeo",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes between node_started and a terminal node event",
	})

	return m
}

// Subscribe registers the observer on bus for one execution_id,
// idempotently: re-subscribing the same (observer, execution_id) pair is
// a no-op, matching spec.md §4.12's "subscribe metrics observer
// (idempotent)" step.
func (m *MetricsObserver) Subscribe(bus *event.Bus, executionID string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subscribed[executionID] {
		return
	}
	m.subscribed[executionID] = true

	bus.Subscribe([]event.EventType{
		event.NodeStarted, event.NodeCompleted, event.NodeError,
		event.ExecutionCompleted, event.ExecutionError,
	}, func(ev event.Event) {
		if ev.Scope.ExecutionID == executionID {
			m.onEvent(executionID, ev)
		}
	}, event.PriorityNormal, nil)
}

func (m *MetricsObserver) execMetrics(executionID string) *executionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.byExec[executionID]
	if !ok {
		em = &executionMetrics{nodes: make(map[core.NodeID]*NodeMetric)}
		m.byExec[executionID] = em
	}
	return em
}

func (m *MetricsObserver) onEvent(executionID string, ev event.Event) {
	em := m.execMetrics(executionID)

	switch ev.Type {
	case event.NodeStarted:
		p, ok := ev.Payload.(event.NodeStartedPayload)
		if !ok {
			return
		}
		em.mu.Lock()
		em.nodes[p.NodeID] = &NodeMetric{StartedAt: ev.Timestamp}
		em.mu.Unlock()
		if m.inflight != nil {
			m.inflight.Inc()
		}

	case event.NodeCompleted:
		p, ok := ev.Payload.(event.NodeCompletedPayload)
		if !ok {
			return
		}
		em.mu.Lock()
		nm := em.nodes[p.NodeID]
		if nm == nil {
			nm = &NodeMetric{}
			em.nodes[p.NodeID] = nm
		}
		nm.EndedAt = ev.Timestamp
		nm.DurationMs = p.Duration.Milliseconds()
		if p.Output.Meta != nil {
			if usage, ok := p.Output.Meta["llm_usage"].(core.LLMUsage); ok {
				nm.TokenUsage = usage
				em.usage = em.usage.Add(usage)
				if m.llmTokens != nil {
					m.llmTokens.WithLabelValues(executionID, string(p.NodeID), "total").Add(float64(usage.TotalTokens))
				}
			}
		}
		em.mu.Unlock()
		if m.inflight != nil {
			m.inflight.Dec()
		}
		if m.stepLatency != nil {
			m.stepLatency.WithLabelValues(executionID, string(p.NodeID), "", "success").Observe(float64(nm.DurationMs))
		}

	case event.NodeError:
		p, ok := ev.Payload.(event.NodeErrorPayload)
		if !ok {
			return
		}
		em.mu.Lock()
		nm := em.nodes[p.NodeID]
		if nm == nil {
			nm = &NodeMetric{}
			em.nodes[p.NodeID] = nm
		}
		nm.EndedAt = ev.Timestamp
		if p.Err != nil {
			nm.Error = p.Err.Error()
		}
		em.mu.Unlock()
		if m.inflight != nil {
			m.inflight.Dec()
		}
		if m.retries != nil {
			m.retries.WithLabelValues(executionID, string(p.NodeID), "error").Inc()
		}
	}
}

// GetExecutionMetrics returns the raw per-node accounting for executionID.
func (m *MetricsObserver) GetExecutionMetrics(executionID string) ExecutionMetrics {
	em := m.execMetrics(executionID)
	em.mu.RLock()
	defer em.mu.RUnlock()

	nodes := make(map[core.NodeID]NodeMetric, len(em.nodes))
	for id, nm := range em.nodes {
		nodes[id] = *nm
	}
	return ExecutionMetrics{ExecutionID: executionID, Nodes: nodes, LLMUsage: em.usage}
}

// GetMetricsSummary condenses GetExecutionMetrics plus a critical-path
// derivation (spec.md §4.10: "longest-duration chain of completed nodes
// from any source to any terminal"). diagram supplies the edges the
// per-node timings are walked over; the observer itself never holds a
// diagram reference between calls.
func (m *MetricsObserver) GetMetricsSummary(executionID string, diagram *compiler.ExecutableDiagram) MetricsSummary {
	full := m.GetExecutionMetrics(executionID)

	errCount := 0
	for _, nm := range full.Nodes {
		if nm.Error != "" {
			errCount++
		}
	}

	pathMs, path := criticalPath(diagram, full.Nodes)

	return MetricsSummary{
		ExecutionID:    executionID,
		NodeCount:      len(full.Nodes),
		ErrorCount:     errCount,
		LLMUsage:       full.LLMUsage,
		CriticalPathMs: pathMs,
		CriticalPath:   path,
	}
}

// criticalPath computes the longest sum-of-durations chain through
// diagram's edges, restricted to nodes present in nodes (i.e. nodes that
// actually completed). It is a memoized DFS with a recursion guard so a
// diagram containing a budgeted loop cannot recurse forever.
func criticalPath(diagram *compiler.ExecutableDiagram, nodes map[core.NodeID]NodeMetric) (int64, []core.NodeID) {
	if diagram == nil {
		return 0, nil
	}

	memo := make(map[core.NodeID]int64)
	onPath := make(map[core.NodeID]bool)
	var best func(n core.NodeID) int64
	best = func(n core.NodeID) int64 {
		if v, ok := memo[n]; ok {
			return v
		}
		if onPath[n] {
			return 0
		}
		onPath[n] = true
		defer delete(onPath, n)

		nm, ok := nodes[n]
		if !ok {
			memo[n] = 0
			return 0
		}
		own := nm.DurationMs
		var max int64
		for _, e := range diagram.EdgesBySource[n] {
			if v := best(e.TargetNode); v > max {
				max = v
			}
		}
		total := own + max
		memo[n] = total
		return total
	}

	var bestStart core.NodeID
	var bestTotal int64
	for _, n := range diagram.Nodes {
		total := best(n.ID)
		if total > bestTotal {
			bestTotal = total
			bestStart = n.ID
		}
	}
	if bestTotal == 0 {
		return 0, nil
	}

	path := []core.NodeID{bestStart}
	cur := bestStart
	for {
		var next core.NodeID
		var nextVal int64 = -1
		for _, e := range diagram.EdgesBySource[cur] {
			if v, ok := memo[e.TargetNode]; ok && v > nextVal {
				nextVal = v
				next = e.TargetNode
			}
		}
		if next == "" || nextVal <= 0 {
			break
		}
		path = append(path, next)
		cur = next
	}
	return bestTotal, path
}
