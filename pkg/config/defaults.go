package config

import "time"

// Default values for configuration fields.
const (
	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Metrics defaults
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsNamespace     = "warden"

	// Tracing defaults
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "warden"
	DefaultTracingSampleRatio = 0.1

	// Policy defaults
	DefaultRulesPath = "./rules.yaml"

	// Approval defaults
	DefaultApprovalSecretEnv  = "WARDEN_APPROVAL_SECRET"
	DefaultApprovalTTL        = 3600 * time.Second
	DefaultApprovalSQLitePath = "data/approvals.db"

	// Budget defaults
	DefaultBudgetTimeMillis = 30000
	DefaultBudgetOps        = 1000
	DefaultBudgetCostCents  = 100

	// Learning defaults
	DefaultLearningSQLitePath = "data/examples.db"
	DefaultMinExamples        = 20
	DefaultLearningLookback   = 90 * 24 * time.Hour
	DefaultSampleSize         = 50
	DefaultSamplerStrategy    = "disagreement_entropy"

	// Canary defaults
	DefaultCanaryEvaluator  = "delta"
	DefaultRollbackDrop     = 0.05
	DefaultPromoteGain      = 0.02
	DefaultCanaryMinSamples = 100

	// Audit defaults
	DefaultAuditBackend    = "sqlite"
	DefaultAuditSQLitePath = "data/audit.db"

	// Schedule defaults: nightly batch window
	DefaultTrainingSchedule        = "0 2 * * *"
	DefaultJudgeUpdateSchedule     = "0 3 * * *"
	DefaultRegressionCheckSchedule = "0 4 * * *"
)

// ApplyDefaults fills unset fields with default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}

	if cfg.Policy.RulesPath == "" {
		cfg.Policy.RulesPath = DefaultRulesPath
	}

	if cfg.Approval.SecretEnv == "" {
		cfg.Approval.SecretEnv = DefaultApprovalSecretEnv
	}
	if cfg.Approval.TTL == 0 {
		cfg.Approval.TTL = DefaultApprovalTTL
	}
	if cfg.Approval.SQLitePath == "" {
		cfg.Approval.SQLitePath = DefaultApprovalSQLitePath
	}

	zero := CeilingConfig{}
	if cfg.Budget.Default == zero {
		cfg.Budget.Default = CeilingConfig{
			TimeMillis: DefaultBudgetTimeMillis,
			Ops:        DefaultBudgetOps,
			CostCents:  DefaultBudgetCostCents,
		}
	}

	if cfg.Learning.SQLitePath == "" {
		cfg.Learning.SQLitePath = DefaultLearningSQLitePath
	}
	if cfg.Learning.MinExamples == 0 {
		cfg.Learning.MinExamples = DefaultMinExamples
	}
	if cfg.Learning.Lookback == 0 {
		cfg.Learning.Lookback = DefaultLearningLookback
	}
	if cfg.Learning.SampleSize == 0 {
		cfg.Learning.SampleSize = DefaultSampleSize
	}
	if cfg.Learning.Strategy == "" {
		cfg.Learning.Strategy = DefaultSamplerStrategy
	}

	if cfg.Canary.Evaluator == "" {
		cfg.Canary.Evaluator = DefaultCanaryEvaluator
	}
	if cfg.Canary.RollbackDrop == 0 {
		cfg.Canary.RollbackDrop = DefaultRollbackDrop
	}
	if cfg.Canary.PromoteGain == 0 {
		cfg.Canary.PromoteGain = DefaultPromoteGain
	}
	if cfg.Canary.MinSamples == 0 {
		cfg.Canary.MinSamples = DefaultCanaryMinSamples
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}

	if cfg.Schedules.Training == "" {
		cfg.Schedules.Training = DefaultTrainingSchedule
	}
	if cfg.Schedules.JudgeUpdate == "" {
		cfg.Schedules.JudgeUpdate = DefaultJudgeUpdateSchedule
	}
	if cfg.Schedules.RegressionCheck == "" {
		cfg.Schedules.RegressionCheck = DefaultRegressionCheckSchedule
	}
}
