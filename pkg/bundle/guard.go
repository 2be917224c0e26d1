package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Cohort summarizes execution quality for one side of a canary split.
type Cohort struct {
	Samples   int
	Successes int
}

// SuccessRate returns successes/samples, or 0 for an empty cohort.
func (c Cohort) SuccessRate() float64 {
	if c.Samples == 0 {
		return 0
	}
	return float64(c.Successes) / float64(c.Samples)
}

// CohortStats supplies canary and control quality cohorts for an agent.
// Implementations typically aggregate guardrail outcomes since the canary
// was applied.
type CohortStats interface {
	Cohorts(ctx context.Context, agent string) (canary, control Cohort, err error)
}

// VerdictAction is what the guard decided to do with the canary.
type VerdictAction string

const (
	VerdictHold     VerdictAction = "hold"
	VerdictPromote  VerdictAction = "promote"
	VerdictRollback VerdictAction = "rollback"
)

// Verdict is an evaluator's judgement of a canary against its control.
type Verdict struct {
	Action VerdictAction
	Reason string

	// Delta is canary quality minus control quality.
	Delta float64
}

// Evaluator is the pluggable statistical test deciding canary fate.
type Evaluator interface {
	Evaluate(canary, control Cohort) Verdict
	Name() string
}

// DeltaEvaluator compares plain success-rate deltas against fixed
// thresholds once both cohorts reach the minimum sample size.
type DeltaEvaluator struct {
	// RollbackDrop triggers rollback when canary quality drops by more
	// than this fraction (default 0.05).
	RollbackDrop float64

	// PromoteGain triggers promotion when canary quality improves by more
	// than this fraction (default 0.02).
	PromoteGain float64

	// MinSamples is the per-cohort sample floor before any verdict other
	// than hold (default 100).
	MinSamples int
}

// DefaultDeltaEvaluator returns a DeltaEvaluator with the default thresholds.
func DefaultDeltaEvaluator() *DeltaEvaluator {
	return &DeltaEvaluator{RollbackDrop: 0.05, PromoteGain: 0.02, MinSamples: 100}
}

// Name identifies the evaluator.
func (e *DeltaEvaluator) Name() string { return "delta" }

// Evaluate compares cohort success rates.
func (e *DeltaEvaluator) Evaluate(canary, control Cohort) Verdict {
	if canary.Samples < e.MinSamples || control.Samples < e.MinSamples {
		return Verdict{
			Action: VerdictHold,
			Reason: fmt.Sprintf("insufficient samples: canary=%d control=%d min=%d", canary.Samples, control.Samples, e.MinSamples),
		}
	}

	delta := canary.SuccessRate() - control.SuccessRate()
	switch {
	case delta < -e.RollbackDrop:
		return Verdict{
			Action: VerdictRollback,
			Reason: fmt.Sprintf("canary quality dropped %.4f (threshold %.4f)", -delta, e.RollbackDrop),
			Delta:  delta,
		}
	case delta > e.PromoteGain:
		return Verdict{
			Action: VerdictPromote,
			Reason: fmt.Sprintf("canary quality improved %.4f (threshold %.4f)", delta, e.PromoteGain),
			Delta:  delta,
		}
	default:
		return Verdict{Action: VerdictHold, Reason: "quality delta within thresholds", Delta: delta}
	}
}

// TwoProportionEvaluator applies a two-proportion z-test before acting on a
// delta, so noisy cohorts hold instead of flapping.
type TwoProportionEvaluator struct {
	// ZCritical is the significance cutoff for |z| (default 1.96 ≈ 95%).
	ZCritical float64

	// RollbackDrop and PromoteGain bound the practically relevant effect
	// size, as in DeltaEvaluator.
	RollbackDrop float64
	PromoteGain  float64

	// MinSamples is the per-cohort sample floor (default 100).
	MinSamples int
}

// DefaultTwoProportionEvaluator returns the evaluator with defaults.
func DefaultTwoProportionEvaluator() *TwoProportionEvaluator {
	return &TwoProportionEvaluator{ZCritical: 1.96, RollbackDrop: 0.05, PromoteGain: 0.02, MinSamples: 100}
}

// Name identifies the evaluator.
func (e *TwoProportionEvaluator) Name() string { return "two_proportion" }

// Evaluate runs the z-test and then applies the delta thresholds.
func (e *TwoProportionEvaluator) Evaluate(canary, control Cohort) Verdict {
	if canary.Samples < e.MinSamples || control.Samples < e.MinSamples {
		return Verdict{
			Action: VerdictHold,
			Reason: fmt.Sprintf("insufficient samples: canary=%d control=%d min=%d", canary.Samples, control.Samples, e.MinSamples),
		}
	}

	p1 := canary.SuccessRate()
	p2 := control.SuccessRate()
	delta := p1 - p2

	pooled := float64(canary.Successes+control.Successes) / float64(canary.Samples+control.Samples)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(canary.Samples) + 1/float64(control.Samples)))
	if se == 0 {
		return Verdict{Action: VerdictHold, Reason: "zero variance across cohorts", Delta: delta}
	}

	z := delta / se
	if math.Abs(z) < e.ZCritical {
		return Verdict{Action: VerdictHold, Reason: fmt.Sprintf("delta not significant (z=%.2f)", z), Delta: delta}
	}

	switch {
	case delta < -e.RollbackDrop:
		return Verdict{
			Action: VerdictRollback,
			Reason: fmt.Sprintf("significant quality drop %.4f (z=%.2f)", -delta, z),
			Delta:  delta,
		}
	case delta > e.PromoteGain:
		return Verdict{
			Action: VerdictPromote,
			Reason: fmt.Sprintf("significant quality gain %.4f (z=%.2f)", delta, z),
			Delta:  delta,
		}
	default:
		return Verdict{Action: VerdictHold, Reason: "significant but below action thresholds", Delta: delta}
	}
}

// Guard checks agents with an active canary and automatically promotes or
// rolls back based on the evaluator's verdict. Rollbacks are automatic but
// never silent: every one emits an audit event and returns a
// RegressionDetectedError to the scheduler for incident visibility.
type Guard struct {
	manager   *Manager
	stats     CohortStats
	evaluator Evaluator
	logger    *slog.Logger
}

// NewGuard creates a regression guard.
func NewGuard(manager *Manager, stats CohortStats, evaluator Evaluator, logger *slog.Logger) (*Guard, error) {
	if manager == nil {
		return nil, errors.New("bundle manager cannot be nil")
	}
	if stats == nil {
		return nil, errors.New("cohort stats cannot be nil")
	}
	if evaluator == nil {
		evaluator = DefaultDeltaEvaluator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		manager:   manager,
		stats:     stats,
		evaluator: evaluator,
		logger:    logger.With("component", "bundle.guard"),
	}, nil
}

// Check evaluates one agent's canary. Agents without a canary return a hold
// verdict. A rollback verdict restores the backup and returns a
// RegressionDetectedError after the rollback has completed.
func (g *Guard) Check(ctx context.Context, agent string) (Verdict, error) {
	canary := g.manager.Canary(agent)
	if canary == nil {
		return Verdict{Action: VerdictHold, Reason: "no active canary"}, nil
	}

	canaryCohort, controlCohort, err := g.stats.Cohorts(ctx, agent)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to load cohorts for %s: %w", agent, err)
	}

	verdict := g.evaluator.Evaluate(canaryCohort, controlCohort)
	g.logger.Info("canary checked",
		"agent", agent,
		"canary_version", canary.Version,
		"evaluator", g.evaluator.Name(),
		"action", verdict.Action,
		"delta", verdict.Delta,
		"reason", verdict.Reason,
	)

	switch verdict.Action {
	case VerdictRollback:
		if err := g.manager.Rollback(ctx, agent, verdict.Reason); err != nil {
			return verdict, fmt.Errorf("rollback failed for %s: %w", agent, err)
		}
		return verdict, &RegressionDetectedError{
			Agent:         agent,
			CanaryVersion: canary.Version,
			Delta:         verdict.Delta,
			Reason:        verdict.Reason,
		}

	case VerdictPromote:
		if err := g.manager.Promote(ctx, agent); err != nil {
			return verdict, fmt.Errorf("promotion failed for %s: %w", agent, err)
		}
		return verdict, nil

	default:
		return verdict, nil
	}
}
