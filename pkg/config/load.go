package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults, and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// WARDEN_SECTION_FIELD (e.g., WARDEN_POLICY_RULES_PATH) and always take
// precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with every field set to its default.
func DefaultConfig() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("WARDEN_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("WARDEN_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("WARDEN_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Metrics.ListenAddress = val
	}

	if val := os.Getenv("WARDEN_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_TRACING_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}
	if val := os.Getenv("WARDEN_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Tracing.SampleRatio = f
		}
	}

	if val := os.Getenv("WARDEN_POLICY_RULES_PATH"); val != "" {
		cfg.Policy.RulesPath = val
	}
	if val := os.Getenv("WARDEN_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	if val := os.Getenv("WARDEN_APPROVAL_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Approval.TTL = d
		}
	}
	if val := os.Getenv("WARDEN_APPROVAL_SQLITE_PATH"); val != "" {
		cfg.Approval.SQLitePath = val
	}

	if val := os.Getenv("WARDEN_LEARNING_SQLITE_PATH"); val != "" {
		cfg.Learning.SQLitePath = val
	}
	if val := os.Getenv("WARDEN_LEARNING_MIN_EXAMPLES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Learning.MinExamples = n
		}
	}
	if val := os.Getenv("WARDEN_LEARNING_STRATEGY"); val != "" {
		cfg.Learning.Strategy = val
	}

	if val := os.Getenv("WARDEN_CANARY_EVALUATOR"); val != "" {
		cfg.Canary.Evaluator = val
	}
	if val := os.Getenv("WARDEN_CANARY_ROLLBACK_DROP"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Canary.RollbackDrop = f
		}
	}
	if val := os.Getenv("WARDEN_CANARY_PROMOTE_GAIN"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Canary.PromoteGain = f
		}
	}

	if val := os.Getenv("WARDEN_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("WARDEN_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLitePath = val
	}
}
