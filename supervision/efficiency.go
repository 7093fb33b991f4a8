package supervision

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NodeMetric is one recorded resource sample for a single node execution.
type NodeMetric struct {
	NodeID          string
	MemoryMB        float64
	CPUPercent      float64
	DurationSeconds float64
}

type workflowAggregate struct {
	totalDuration float64
	maxMemory     float64
	maxCPU        float64
	nodes         []NodeMetric
}

// Thresholds configures WorkflowEfficiencyMonitor.CheckThresholds.
// Comparisons are strict (>); a value equal to its threshold is not a
// violation, per spec.md §4.9.
type Thresholds struct {
	MaxWorkflowDurationSeconds float64
	MaxMemoryMB                float64
	MaxCPUPercent              float64
	MaxNodeDurationSeconds     float64
}

// DefaultThresholds returns conservative defaults for a development setup.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxWorkflowDurationSeconds: 300,
		MaxMemoryMB:                2048,
		MaxCPUPercent:              90,
		MaxNodeDurationSeconds:     60,
	}
}

// Alert reports a threshold breach.
type Alert struct {
	Type       string // slow_execution, memory_overuse, cpu_overuse
	WorkflowID string
	NodeID     string // set only for per-node slow_execution alerts
	Value      float64
	Threshold  float64
}

// WorkflowEfficiencyMonitor records per-node resource samples and
// aggregates them per workflow: total duration (sum), max memory, max CPU.
// It also mirrors every sample into a dedicated Prometheus registry, the
// same NewCounterVec/NewGaugeVec/NewHistogramVec + MustRegister shape as
// the teacher's observability.Metrics, so the running numbers behind a
// CheckThresholds alert are scrapeable rather than only visible as a Go
// struct.
type WorkflowEfficiencyMonitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	workflows  map[string]*workflowAggregate

	registry       *prometheus.Registry
	nodeDuration   *prometheus.HistogramVec
	workflowMemory *prometheus.GaugeVec
	workflowCPU    *prometheus.GaugeVec
	nodesRecorded  *prometheus.CounterVec
}

// NewWorkflowEfficiencyMonitor returns a monitor enforcing t.
func NewWorkflowEfficiencyMonitor(t Thresholds) *WorkflowEfficiencyMonitor {
	m := &WorkflowEfficiencyMonitor{
		thresholds: t,
		workflows:  make(map[string]*workflowAggregate),
		registry:   prometheus.NewRegistry(),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "workflow_efficiency",
			Name:      "node_duration_seconds",
			Help:      "Duration of a single node execution in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"workflow_id", "node_id"}),
		workflowMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "workflow_efficiency",
			Name:      "max_memory_mb",
			Help:      "Highest per-node memory sample observed for a workflow",
		}, []string{"workflow_id"}),
		workflowCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "workflow_efficiency",
			Name:      "max_cpu_percent",
			Help:      "Highest per-node CPU sample observed for a workflow",
		}, []string{"workflow_id"}),
		nodesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "workflow_efficiency",
			Name:      "nodes_recorded_total",
			Help:      "Total number of node resource samples recorded",
		}, []string{"workflow_id"}),
	}
	m.registry.MustRegister(m.nodeDuration, m.workflowMemory, m.workflowCPU, m.nodesRecorded)
	return m
}

// RecordNode appends one node's resource sample to workflowID's aggregate
// and observes it on the corresponding Prometheus collectors.
func (m *WorkflowEfficiencyMonitor) RecordNode(workflowID string, metric NodeMetric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.workflows[workflowID]
	if !ok {
		agg = &workflowAggregate{}
		m.workflows[workflowID] = agg
	}
	agg.totalDuration += metric.DurationSeconds
	if metric.MemoryMB > agg.maxMemory {
		agg.maxMemory = metric.MemoryMB
	}
	if metric.CPUPercent > agg.maxCPU {
		agg.maxCPU = metric.CPUPercent
	}
	agg.nodes = append(agg.nodes, metric)

	m.nodeDuration.WithLabelValues(workflowID, metric.NodeID).Observe(metric.DurationSeconds)
	m.workflowMemory.WithLabelValues(workflowID).Set(agg.maxMemory)
	m.workflowCPU.WithLabelValues(workflowID).Set(agg.maxCPU)
	m.nodesRecorded.WithLabelValues(workflowID).Inc()
}

// Registry returns the Prometheus registry backing this monitor's metrics,
// for wiring into an HTTP /metrics endpoint.
func (m *WorkflowEfficiencyMonitor) Registry() *prometheus.Registry {
	return m.registry
}

// CheckThresholds returns every workflow-level and per-node alert for
// workflowID. A workflow with no recorded samples returns nil.
func (m *WorkflowEfficiencyMonitor) CheckThresholds(workflowID string) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.workflows[workflowID]
	if !ok {
		return nil
	}

	var alerts []Alert
	if agg.totalDuration > m.thresholds.MaxWorkflowDurationSeconds {
		alerts = append(alerts, Alert{Type: "slow_execution", WorkflowID: workflowID, Value: agg.totalDuration, Threshold: m.thresholds.MaxWorkflowDurationSeconds})
	}
	if agg.maxMemory > m.thresholds.MaxMemoryMB {
		alerts = append(alerts, Alert{Type: "memory_overuse", WorkflowID: workflowID, Value: agg.maxMemory, Threshold: m.thresholds.MaxMemoryMB})
	}
	if agg.maxCPU > m.thresholds.MaxCPUPercent {
		alerts = append(alerts, Alert{Type: "cpu_overuse", WorkflowID: workflowID, Value: agg.maxCPU, Threshold: m.thresholds.MaxCPUPercent})
	}
	for _, n := range agg.nodes {
		if n.DurationSeconds > m.thresholds.MaxNodeDurationSeconds {
			alerts = append(alerts, Alert{Type: "slow_execution", WorkflowID: workflowID, NodeID: n.NodeID, Value: n.DurationSeconds, Threshold: m.thresholds.MaxNodeDurationSeconds})
		}
	}
	return alerts
}
