package config

import "time"

// Config is the root configuration for the warden daemon.
type Config struct {
	Logging   LoggingConfig  `yaml:"logging"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Tracing   TracingConfig  `yaml:"tracing"`
	Policy    PolicyConfig   `yaml:"policy"`
	Approval  ApprovalConfig `yaml:"approval"`
	Budget    BudgetConfig   `yaml:"budget"`
	Learning  LearningConfig `yaml:"learning"`
	Canary    CanaryConfig   `yaml:"canary"`
	Audit     AuditConfig    `yaml:"audit"`
	Schedules ScheduleConfig `yaml:"schedules"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Namespace     string `yaml:"namespace"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// PolicyConfig controls rule loading and hot reload.
type PolicyConfig struct {
	// RulesPath is a rules file or a directory of rule files.
	RulesPath string `yaml:"rules_path"`
	Watch     bool   `yaml:"watch"`
}

// ApprovalConfig controls the approval service.
type ApprovalConfig struct {
	// SecretEnv names the environment variable holding the HMAC secret.
	// The secret itself never appears in the file.
	SecretEnv string `yaml:"secret_env"`

	TTL        time.Duration `yaml:"ttl"`
	SQLitePath string        `yaml:"sqlite_path"`
}

// CeilingConfig is a per-action-type budget ceiling. Zero means unlimited.
type CeilingConfig struct {
	TimeMillis int64 `yaml:"time_ms"`
	Ops        int64 `yaml:"ops"`
	CostCents  int64 `yaml:"cost_cents"`
}

// BudgetConfig carries the default ceiling plus per-action overrides.
type BudgetConfig struct {
	Default CeilingConfig            `yaml:"default"`
	PerType map[string]CeilingConfig `yaml:"per_type"`
}

// LearningConfig controls the example store and trainer.
type LearningConfig struct {
	SQLitePath  string        `yaml:"sqlite_path"`
	MinExamples int           `yaml:"min_examples"`
	Lookback    time.Duration `yaml:"lookback"`
	SampleSize  int           `yaml:"sample_size"`
	// Strategy selects the uncertainty sampler: "disagreement_entropy",
	// "low_top_confidence", or "score_variance".
	Strategy string `yaml:"strategy"`
}

// CanaryConfig controls the regression guard.
type CanaryConfig struct {
	// Evaluator selects the statistical test: "delta" or "two_proportion".
	Evaluator    string  `yaml:"evaluator"`
	RollbackDrop float64 `yaml:"rollback_drop"`
	PromoteGain  float64 `yaml:"promote_gain"`
	MinSamples   int     `yaml:"min_samples"`
}

// AuditConfig controls the audit trail sink.
type AuditConfig struct {
	// Backend is "log" or "sqlite".
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ScheduleConfig carries the cron cadences for the nightly jobs.
type ScheduleConfig struct {
	Training        string `yaml:"training"`
	JudgeUpdate     string `yaml:"judge_update"`
	RegressionCheck string `yaml:"regression_check"`
}
