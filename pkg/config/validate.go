package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

var validStrategies = map[string]bool{
	"disagreement_entropy": true,
	"low_top_confidence":   true,
	"score_variance":       true,
}

var validEvaluators = map[string]bool{
	"delta":          true,
	"two_proportion": true,
}

var validAuditBackends = map[string]bool{
	"log":    true,
	"sqlite": true,
}

// Validate checks the configuration for invalid or inconsistent values.
// Call it after ApplyDefaults.
func Validate(cfg *Config) error {
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be in [0,1], got %v", cfg.Tracing.SampleRatio)
	}

	if cfg.Policy.RulesPath == "" {
		return fmt.Errorf("policy.rules_path is required")
	}

	if cfg.Approval.TTL <= 0 {
		return fmt.Errorf("approval.ttl must be positive, got %v", cfg.Approval.TTL)
	}
	if cfg.Approval.SecretEnv == "" {
		return fmt.Errorf("approval.secret_env is required")
	}

	if err := validateCeiling("budget.default", cfg.Budget.Default); err != nil {
		return err
	}
	for name, c := range cfg.Budget.PerType {
		if err := validateCeiling("budget.per_type."+name, c); err != nil {
			return err
		}
	}

	if cfg.Learning.MinExamples < 1 {
		return fmt.Errorf("learning.min_examples must be at least 1, got %d", cfg.Learning.MinExamples)
	}
	if !validStrategies[cfg.Learning.Strategy] {
		return fmt.Errorf("learning.strategy %q is not supported", cfg.Learning.Strategy)
	}

	if !validEvaluators[cfg.Canary.Evaluator] {
		return fmt.Errorf("canary.evaluator %q is not supported", cfg.Canary.Evaluator)
	}
	if cfg.Canary.RollbackDrop <= 0 || cfg.Canary.RollbackDrop >= 1 {
		return fmt.Errorf("canary.rollback_drop must be in (0,1), got %v", cfg.Canary.RollbackDrop)
	}
	if cfg.Canary.PromoteGain <= 0 || cfg.Canary.PromoteGain >= 1 {
		return fmt.Errorf("canary.promote_gain must be in (0,1), got %v", cfg.Canary.PromoteGain)
	}
	if cfg.Canary.MinSamples < 1 {
		return fmt.Errorf("canary.min_samples must be at least 1, got %d", cfg.Canary.MinSamples)
	}

	if !validAuditBackends[cfg.Audit.Backend] {
		return fmt.Errorf("audit.backend %q is not supported", cfg.Audit.Backend)
	}
	if cfg.Audit.Backend == "sqlite" && cfg.Audit.SQLitePath == "" {
		return fmt.Errorf("audit.sqlite_path is required for the sqlite backend")
	}

	for name, expr := range map[string]string{
		"schedules.training":         cfg.Schedules.Training,
		"schedules.judge_update":     cfg.Schedules.JudgeUpdate,
		"schedules.regression_check": cfg.Schedules.RegressionCheck,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("%s: invalid cron expression %q: %w", name, expr, err)
		}
	}

	return nil
}

func validateCeiling(name string, c CeilingConfig) error {
	if c.TimeMillis < 0 || c.Ops < 0 || c.CostCents < 0 {
		return fmt.Errorf("%s: ceiling values must be non-negative", name)
	}
	return nil
}
