package learning

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"warden-hq/warden/pkg/bundle"
)

// DefaultMinExamples is the training floor per agent.
const DefaultMinExamples = 20

// TrainResult is a trainer run's output: a draft bundle plus a structured
// diff against the agent's currently active bundle.
type TrainResult struct {
	Bundle   *bundle.Bundle
	Diff     []bundle.ThresholdChange
	Examples int
}

// Trainer deterministically derives decision thresholds from labeled
// examples. For each feature it picks the split point that best separates
// correct from incorrect actions; identical inputs always produce identical
// thresholds.
type Trainer struct {
	store       Store
	manager     *bundle.Manager
	minExamples int
	lookback    time.Duration
	logger      *slog.Logger
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithMinExamples overrides the training floor.
func WithMinExamples(n int) TrainerOption {
	return func(t *Trainer) { t.minExamples = n }
}

// WithLookback restricts training to examples within the window.
func WithLookback(d time.Duration) TrainerOption {
	return func(t *Trainer) { t.lookback = d }
}

// NewTrainer creates a trainer that registers its drafts with the bundle
// manager.
func NewTrainer(store Store, manager *bundle.Manager, logger *slog.Logger, opts ...TrainerOption) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trainer{
		store:       store,
		manager:     manager,
		minExamples: DefaultMinExamples,
		lookback:    90 * 24 * time.Hour,
		logger:      logger.With("component", "learning.trainer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits thresholds for one agent and registers the result as a draft
// bundle. It returns TrainingDataInsufficientError below the example floor.
func (t *Trainer) Train(ctx context.Context, agent string) (*TrainResult, error) {
	since := time.Now().Add(-t.lookback)
	examples, err := t.store.ListByAgent(ctx, agent, since)
	if err != nil {
		return nil, err
	}
	if len(examples) < t.minExamples {
		return nil, &TrainingDataInsufficientError{Agent: agent, Have: len(examples), Need: t.minExamples}
	}

	thresholds := fitThresholds(examples)

	draft, err := t.manager.Create(ctx, agent, thresholds, nil)
	if err != nil {
		return nil, err
	}

	active := t.manager.Active(agent)
	diff := bundle.Diff(active, draft)
	sort.Slice(diff, func(i, j int) bool { return diff[i].Key < diff[j].Key })

	t.logger.Info("training run completed",
		"agent", agent,
		"examples", len(examples),
		"thresholds", len(thresholds),
		"changes", len(diff),
		"draft_version", draft.Version,
	)

	return &TrainResult{Bundle: draft, Diff: diff, Examples: len(examples)}, nil
}

// fitThresholds derives one threshold per feature: the split point that
// maximizes accuracy when predicting "incorrect action" for values at or
// above the threshold. Candidate splits are the midpoints between adjacent
// distinct values; ties resolve to the lowest split so the fit is
// deterministic.
func fitThresholds(examples []*Example) map[string]float64 {
	// Collect per-feature observations in deterministic feature order.
	featureSet := make(map[string]bool)
	for _, e := range examples {
		for name := range e.Features {
			featureSet[name] = true
		}
	}
	features := make([]string, 0, len(featureSet))
	for name := range featureSet {
		features = append(features, name)
	}
	sort.Strings(features)

	thresholds := make(map[string]float64, len(features))
	for _, name := range features {
		type obs struct {
			value float64
			bad   bool // true when the action was wrong
		}
		var observations []obs
		for _, e := range examples {
			v, ok := e.Features[name]
			if !ok {
				continue
			}
			observations = append(observations, obs{value: v, bad: !e.Label})
		}
		if len(observations) < 2 {
			continue
		}

		sort.Slice(observations, func(i, j int) bool { return observations[i].value < observations[j].value })

		totalBad := 0
		for _, o := range observations {
			if o.bad {
				totalBad++
			}
		}

		// Scan splits: predicting bad for value >= split. Start with the
		// degenerate split below the minimum (predict everything bad).
		bestSplit := observations[0].value
		bestCorrect := totalBad

		badAbove := totalBad
		goodBelow := 0
		for i := 0; i < len(observations)-1; i++ {
			if observations[i].bad {
				badAbove--
			} else {
				goodBelow++
			}
			if observations[i].value == observations[i+1].value {
				continue
			}
			correct := goodBelow + badAbove
			if correct > bestCorrect {
				bestCorrect = correct
				bestSplit = (observations[i].value + observations[i+1].value) / 2
			}
		}

		thresholds[name] = bestSplit
	}
	return thresholds
}
