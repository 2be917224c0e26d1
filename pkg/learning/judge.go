package learning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultLookback bounds how far back evaluations count toward weights.
	DefaultLookback = 30 * 24 * time.Hour

	// DefaultHalfLife is the exponential decay half-life on agreement.
	DefaultHalfLife = 7 * 24 * time.Hour
)

// Evaluation is one judged verdict paired with ground truth.
type Evaluation struct {
	Evaluator string
	Agent     string

	// Agreed is true when the evaluator's verdict matched the eventual
	// ground-truth label.
	Agreed bool

	// Confidence is the evaluator's stated confidence in [0,1].
	Confidence float64

	Timestamp time.Time
}

// EvaluationSource supplies historical evaluations for weight updates.
type EvaluationSource interface {
	// ListEvaluations returns the agent's evaluations at or after since.
	ListEvaluations(ctx context.Context, agent string, since time.Time) ([]*Evaluation, error)
}

// JudgeWeight is the trust weight for one evaluator on one agent.
type JudgeWeight struct {
	Evaluator string
	Agent     string

	// Weight combines decayed agreement with a calibration penalty, in
	// [-1,1]. Evaluators below zero are anti-signal.
	Weight float64

	Samples   int
	UpdatedAt time.Time
}

// JudgeWeightCalculator recomputes evaluator weights from recent
// evaluations. Recency is rewarded with exponential decay on agreement, and
// miscalibration (stated confidence far from realized accuracy) is
// penalized:
//
//	weight = decayed_agreement - 0.5 * |mean_confidence - accuracy|
type JudgeWeightCalculator struct {
	source   EvaluationSource
	lookback time.Duration
	halfLife time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.RWMutex
	weights map[string]map[string]JudgeWeight // agent -> evaluator -> weight
}

// CalculatorOption configures a JudgeWeightCalculator.
type CalculatorOption func(*JudgeWeightCalculator)

// WithCalculatorLookback overrides the evaluation window.
func WithCalculatorLookback(d time.Duration) CalculatorOption {
	return func(c *JudgeWeightCalculator) { c.lookback = d }
}

// WithHalfLife overrides the agreement decay half-life.
func WithHalfLife(d time.Duration) CalculatorOption {
	return func(c *JudgeWeightCalculator) { c.halfLife = d }
}

// WithCalculatorClock injects the time source for tests.
func WithCalculatorClock(now func() time.Time) CalculatorOption {
	return func(c *JudgeWeightCalculator) { c.now = now }
}

// NewJudgeWeightCalculator creates a calculator over the given source.
func NewJudgeWeightCalculator(source EvaluationSource, logger *slog.Logger, opts ...CalculatorOption) *JudgeWeightCalculator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &JudgeWeightCalculator{
		source:   source,
		lookback: DefaultLookback,
		halfLife: DefaultHalfLife,
		now:      time.Now,
		logger:   logger.With("component", "learning.judge"),
		weights:  make(map[string]map[string]JudgeWeight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update recomputes and stores weights for every evaluator that judged the
// agent within the lookback window. The returned slice is sorted by
// evaluator id.
func (c *JudgeWeightCalculator) Update(ctx context.Context, agent string) ([]JudgeWeight, error) {
	now := c.now()
	evals, err := c.source.ListEvaluations(ctx, agent, now.Add(-c.lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations for %s: %w", agent, err)
	}

	type accum struct {
		decayedAgree  float64
		decayedTotal  float64
		confidenceSum float64
		agreeCount    int
		samples       int
	}
	byEvaluator := make(map[string]*accum)
	for _, e := range evals {
		a := byEvaluator[e.Evaluator]
		if a == nil {
			a = &accum{}
			byEvaluator[e.Evaluator] = a
		}
		age := now.Sub(e.Timestamp)
		if age < 0 {
			age = 0
		}
		decay := math.Pow(0.5, age.Hours()/c.halfLife.Hours())
		if e.Agreed {
			a.decayedAgree += decay
			a.agreeCount++
		}
		a.decayedTotal += decay
		a.confidenceSum += e.Confidence
		a.samples++
	}

	out := make([]JudgeWeight, 0, len(byEvaluator))
	for evaluator, a := range byEvaluator {
		if a.decayedTotal == 0 {
			continue
		}
		agreement := a.decayedAgree / a.decayedTotal
		accuracy := float64(a.agreeCount) / float64(a.samples)
		meanConfidence := a.confidenceSum / float64(a.samples)
		weight := agreement - 0.5*math.Abs(meanConfidence-accuracy)
		weight = math.Max(-1, math.Min(1, weight))

		out = append(out, JudgeWeight{
			Evaluator: evaluator,
			Agent:     agent,
			Weight:    weight,
			Samples:   a.samples,
			UpdatedAt: now,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Evaluator < out[j].Evaluator })

	c.mu.Lock()
	byAgent := make(map[string]JudgeWeight, len(out))
	for _, w := range out {
		byAgent[w.Evaluator] = w
	}
	c.weights[agent] = byAgent
	c.mu.Unlock()

	c.logger.Info("judge weights updated", "agent", agent, "evaluators", len(out), "evaluations", len(evals))
	return out, nil
}

// Weight returns the stored weight for an evaluator on an agent.
func (c *JudgeWeightCalculator) Weight(agent, evaluator string) (JudgeWeight, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.weights[agent][evaluator]
	return w, ok
}

// Weights returns all stored weights for an agent, sorted by evaluator id.
func (c *JudgeWeightCalculator) Weights(agent string) []JudgeWeight {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]JudgeWeight, 0, len(c.weights[agent]))
	for _, w := range c.weights[agent] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Evaluator < out[j].Evaluator })
	return out
}
