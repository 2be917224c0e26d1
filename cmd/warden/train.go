package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/bundle"
	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/learning"
	"warden-hq/warden/pkg/telemetry/logging"
)

var trainFlags struct {
	agent string
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training pass for an agent",
	Long: `Fit decision thresholds from the agent's labeled examples and print
the resulting draft bundle with its diff against the active bundle.

The draft is not applied; promotion goes through the bundle lifecycle
(propose, approve, apply, canary).

Examples:
  # Train the triage agent
  warden train --agent triage`,
	RunE: runTraining,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainFlags.agent, "agent", "a", "", "agent to train (required)")
	trainCmd.MarkFlagRequired("agent")
}

func runTraining(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	}, os.Stderr)
	if err != nil {
		return err
	}

	store, err := learning.NewSQLiteStore(cfg.Learning.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open example store: %w", err)
	}
	defer store.Close()

	manager := bundle.NewManager(nil, logger)
	trainer := learning.NewTrainer(store, manager, logger,
		learning.WithMinExamples(cfg.Learning.MinExamples),
		learning.WithLookback(cfg.Learning.Lookback),
	)

	result, err := trainer.Train(cmd.Context(), trainFlags.agent)
	var insufficient *learning.TrainingDataInsufficientError
	if errors.As(err, &insufficient) {
		return fmt.Errorf("not enough labeled examples for %s: have %d, need %d",
			insufficient.Agent, insufficient.Have, insufficient.Need)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Trained %s on %d examples\n", trainFlags.agent, result.Examples)
	fmt.Printf("Draft bundle: version %d (%s)\n", result.Bundle.Version, result.Bundle.State)
	if len(result.Diff) == 0 {
		fmt.Println("No threshold changes against the active bundle")
		return nil
	}
	fmt.Println("Threshold changes:")
	for _, change := range result.Diff {
		fmt.Printf("  %-24s %.4f -> %.4f\n", change.Key, change.Old, change.New)
	}
	return nil
}
