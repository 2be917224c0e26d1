package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config controls metric naming.
type Config struct {
	// Namespace prefixes all metric names. Default: "warden".
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{Namespace: "warden"}
}

// GovernanceMetrics tracks governance-core metrics.
//
// Metrics:
//   - warden_policy_decisions_total: Decisions by rule and effect
//   - warden_executions_total: Executions by action type and outcome
//   - warden_execution_duration_seconds: Execution duration by action type
//   - warden_failures_total: Failures by action type and error type
//   - warden_approvals_total: Approval lifecycle events by status
//   - warden_canary_routes_total: Context routings by agent and cohort
//   - warden_bundle_transitions_total: Bundle state transitions by agent
type GovernanceMetrics struct {
	decisionsTotal     *prometheus.CounterVec
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	failuresTotal      *prometheus.CounterVec
	approvalsTotal     *prometheus.CounterVec
	canaryRoutesTotal  *prometheus.CounterVec
	bundleTransitions  *prometheus.CounterVec
}

// New creates and registers governance metrics with the provided registry.
func New(cfg Config, registry *prometheus.Registry) *GovernanceMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "warden"
	}

	m := &GovernanceMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"rule_id", "effect"},
		),

		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "executions_total",
				Help:      "Total number of guarded action executions",
			},
			[]string{"action_type", "outcome"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of guarded action executions in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
			},
			[]string{"action_type"},
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "failures_total",
				Help:      "Total number of execution failures",
			},
			[]string{"action_type", "error_type"},
		),

		approvalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "approvals_total",
				Help:      "Total number of approval lifecycle events",
			},
			[]string{"status"},
		),

		canaryRoutesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "canary_routes_total",
				Help:      "Total number of execution contexts routed by cohort",
			},
			[]string{"agent", "cohort"},
		),

		bundleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "bundle_transitions_total",
				Help:      "Total number of bundle state transitions",
			},
			[]string{"agent", "state"},
		),
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.executionsTotal,
		m.executionDuration,
		m.failuresTotal,
		m.approvalsTotal,
		m.canaryRoutesTotal,
		m.bundleTransitions,
	)

	return m
}

// RecordDecision records a policy decision.
func (m *GovernanceMetrics) RecordDecision(ruleID, effect string) {
	if ruleID == "" {
		ruleID = "default"
	}
	m.decisionsTotal.WithLabelValues(ruleID, effect).Inc()
}

// RecordExecution records a completed execution and its duration.
func (m *GovernanceMetrics) RecordExecution(actionType, outcome string, duration time.Duration) {
	m.executionsTotal.WithLabelValues(actionType, outcome).Inc()
	m.executionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordFailure records a failed execution by error type.
func (m *GovernanceMetrics) RecordFailure(actionType, errorType string) {
	m.failuresTotal.WithLabelValues(actionType, errorType).Inc()
}

// RecordApproval records an approval lifecycle event.
func (m *GovernanceMetrics) RecordApproval(status string) {
	m.approvalsTotal.WithLabelValues(status).Inc()
}

// RecordCanaryRoute records which cohort an execution context was routed to.
func (m *GovernanceMetrics) RecordCanaryRoute(agent, cohort string) {
	m.canaryRoutesTotal.WithLabelValues(agent, cohort).Inc()
}

// RecordBundleTransition records a bundle state transition.
func (m *GovernanceMetrics) RecordBundleTransition(agent, state string) {
	m.bundleTransitions.WithLabelValues(agent, state).Inc()
}
