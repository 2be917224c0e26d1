package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/approval"
	"warden-hq/warden/pkg/audit"
	"warden-hq/warden/pkg/bundle"
	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/learning"
	"warden-hq/warden/pkg/policy/engine"
	"warden-hq/warden/pkg/policy/engine/source"
	"warden-hq/warden/pkg/schedule"
	"warden-hq/warden/pkg/telemetry/logging"
	"warden-hq/warden/pkg/telemetry/metrics"
	"warden-hq/warden/pkg/telemetry/tracing"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the warden governance daemon",
	Long: `Start the warden daemon with the specified configuration.

The daemon loads policy rules (with hot reload), serves Prometheus metrics,
and runs the nightly maintenance jobs: heuristic training, judge weight
recomputation, and canary regression checks.

Examples:
  # Start with default config
  warden run

  # Start with custom config
  warden run --config /etc/warden/config.yaml

  # Validate config without starting
  warden run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if runFlags.dryRun {
		fmt.Println("configuration is valid")
		return nil
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    logging.Format(cfg.Logging.Format),
		AddSource: cfg.Logging.AddSource,
	}, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	gm := metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace}, registry)

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var recorder audit.Recorder
	switch cfg.Audit.Backend {
	case "sqlite":
		sqlRecorder, err := audit.NewSQLiteRecorder(cfg.Audit.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer sqlRecorder.Close()
		recorder = sqlRecorder
	default:
		recorder = audit.NewLogRecorder(logger)
	}

	// Policy engine with optional hot reload.
	var ruleSource engine.RuleSource = source.NewFileSource(cfg.Policy.RulesPath, logger)
	if !cfg.Policy.Watch {
		rules, err := ruleSource.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		ruleSource = source.NewMemorySource(rules)
	}
	eng, err := engine.New(ctx, ruleSource, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	secret := os.Getenv(cfg.Approval.SecretEnv)
	signer, err := approval.NewHMACSigner([]byte(secret))
	if err != nil {
		return fmt.Errorf("approval secret from %s: %w", cfg.Approval.SecretEnv, err)
	}
	approvalStore, err := approval.NewSQLiteStore(cfg.Approval.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}
	defer approvalStore.Close()
	approvals, err := approval.NewService(approvalStore, signer, logger,
		approval.WithTTL(cfg.Approval.TTL),
		approval.WithAudit(recorder),
	)
	if err != nil {
		return err
	}

	// Sweep stale pending approvals hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := approvals.ExpirePending(ctx); err != nil {
					logger.Warn("approval expiry sweep failed", "error", err)
				}
			}
		}
	}()

	manager := bundle.NewManager(eng, logger,
		bundle.WithAudit(recorder),
		bundle.WithMetrics(gm),
	)

	stats := bundle.NewMemoryStats()
	guard, err := bundle.NewGuard(manager, stats, newEvaluator(cfg), logger)
	if err != nil {
		return err
	}

	exampleStore, err := learning.NewSQLiteStore(cfg.Learning.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open example store: %w", err)
	}
	defer exampleStore.Close()

	trainer := learning.NewTrainer(exampleStore, manager, logger,
		learning.WithMinExamples(cfg.Learning.MinExamples),
		learning.WithLookback(cfg.Learning.Lookback),
	)
	calculator := learning.NewJudgeWeightCalculator(exampleStore, logger)

	lister := &agentUnion{manager: manager, store: exampleStore, logger: logger}
	scheduler := schedule.NewScheduler(lister, logger)
	jobs := map[string]schedule.Job{
		cfg.Schedules.Training:        schedule.TrainingJob{Trainer: trainer},
		cfg.Schedules.JudgeUpdate:     schedule.JudgeUpdateJob{Calculator: calculator},
		cfg.Schedules.RegressionCheck: schedule.RegressionCheckJob{Guard: guard},
	}
	for cronExpr, job := range jobs {
		if err := scheduler.Add(cronExpr, job); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		srv := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "address", cfg.Metrics.ListenAddress)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("warden daemon started",
		"rules_path", cfg.Policy.RulesPath,
		"watch", cfg.Policy.Watch,
		"audit_backend", cfg.Audit.Backend,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// agentUnion lists every agent known to either the bundle manager or the
// example store, so training runs for agents that have examples but no
// bundle yet.
type agentUnion struct {
	manager *bundle.Manager
	store   *learning.SQLiteStore
	logger  *slog.Logger
}

func (u *agentUnion) Agents() []string {
	set := make(map[string]bool)
	for _, agent := range u.manager.Agents() {
		set[agent] = true
	}
	fromStore, err := u.store.Agents(context.Background())
	if err != nil {
		u.logger.Warn("failed to list agents from example store", "error", err)
	}
	for _, agent := range fromStore {
		set[agent] = true
	}
	out := make([]string, 0, len(set))
	for agent := range set {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

func newEvaluator(cfg *config.Config) bundle.Evaluator {
	switch cfg.Canary.Evaluator {
	case "two_proportion":
		e := bundle.DefaultTwoProportionEvaluator()
		e.MinSamples = cfg.Canary.MinSamples
		return e
	default:
		return &bundle.DeltaEvaluator{
			RollbackDrop: cfg.Canary.RollbackDrop,
			PromoteGain:  cfg.Canary.PromoteGain,
			MinSamples:   cfg.Canary.MinSamples,
		}
	}
}
