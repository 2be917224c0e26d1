package schedule

import (
	"context"
	"errors"

	"warden-hq/warden/pkg/bundle"
	"warden-hq/warden/pkg/learning"
)

// TrainingJob runs the heuristic trainer for an agent.
type TrainingJob struct {
	Trainer *learning.Trainer
}

// Name returns the job name.
func (TrainingJob) Name() string { return "heuristic_training" }

// Run trains the agent and registers the resulting draft bundle.
func (j TrainingJob) Run(ctx context.Context, agent string) error {
	_, err := j.Trainer.Train(ctx, agent)
	return err
}

// JudgeUpdateJob recomputes evaluator trust weights for an agent.
type JudgeUpdateJob struct {
	Calculator *learning.JudgeWeightCalculator
}

// Name returns the job name.
func (JudgeUpdateJob) Name() string { return "judge_weight_update" }

// Run updates the agent's judge weights.
func (j JudgeUpdateJob) Run(ctx context.Context, agent string) error {
	_, err := j.Calculator.Update(ctx, agent)
	return err
}

// RegressionCheckJob evaluates active canaries and promotes or rolls back.
type RegressionCheckJob struct {
	Guard *bundle.Guard
}

// Name returns the job name.
func (RegressionCheckJob) Name() string { return "regression_check" }

// Run checks the agent's canary. A missing canary is not an error.
func (j RegressionCheckJob) Run(ctx context.Context, agent string) error {
	_, err := j.Guard.Check(ctx, agent)
	if errors.Is(err, bundle.ErrNoActiveCanary) {
		return nil
	}
	return err
}
