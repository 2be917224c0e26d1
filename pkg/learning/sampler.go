package learning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// DefaultSampleSize is how many candidates Sample returns by default.
const DefaultSampleSize = 50

// Candidate is an unlabeled decision eligible for human review. Scores are
// per-evaluator correctness estimates in [0,1].
type Candidate struct {
	Source   string
	SourceID string
	Agent    string
	Scores   []float64
}

// Key returns the identity used to exclude already-labeled candidates.
func (c *Candidate) Key() string {
	return c.Source + "/" + c.SourceID
}

// CandidateSource supplies unlabeled candidates for sampling.
type CandidateSource interface {
	ListCandidates(ctx context.Context, agent string) ([]*Candidate, error)
}

// Strategy scores a candidate's uncertainty; higher means more worth
// reviewing.
type Strategy interface {
	Name() string
	Score(c *Candidate) float64
}

// DisagreementEntropy scores by the binary entropy of the evaluator split:
// candidates where evaluators are evenly divided score near 1.
type DisagreementEntropy struct{}

// Name returns the strategy name.
func (DisagreementEntropy) Name() string { return "disagreement_entropy" }

// Score computes binary entropy over the fraction of positive verdicts.
func (DisagreementEntropy) Score(c *Candidate) float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	positive := 0
	for _, s := range c.Scores {
		if s >= 0.5 {
			positive++
		}
	}
	p := float64(positive) / float64(len(c.Scores))
	return binaryEntropy(p)
}

// LowTopConfidence scores by how far the mean evaluator score is from a
// confident verdict: a mean near 0.5 scores near 1.
type LowTopConfidence struct{}

// Name returns the strategy name.
func (LowTopConfidence) Name() string { return "low_top_confidence" }

// Score computes 1 minus the top-class probability of the mean score.
func (LowTopConfidence) Score(c *Candidate) float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range c.Scores {
		sum += s
	}
	mean := sum / float64(len(c.Scores))
	return 1 - math.Max(mean, 1-mean)
}

// ScoreVariance scores by the population variance of evaluator scores.
type ScoreVariance struct{}

// Name returns the strategy name.
func (ScoreVariance) Name() string { return "score_variance" }

// Score computes the population variance of the candidate's scores.
func (ScoreVariance) Score(c *Candidate) float64 {
	if len(c.Scores) < 2 {
		return 0
	}
	sum := 0.0
	for _, s := range c.Scores {
		sum += s
	}
	mean := sum / float64(len(c.Scores))
	variance := 0.0
	for _, s := range c.Scores {
		d := s - mean
		variance += d * d
	}
	return variance / float64(len(c.Scores))
}

// RankedCandidate pairs a candidate with its uncertainty score.
type RankedCandidate struct {
	*Candidate
	Score float64
}

// Sampler ranks unlabeled candidates by uncertainty and returns the top-n
// for human review, excluding anything already in the labeled store.
type Sampler struct {
	candidates CandidateSource
	store      Store
	strategy   Strategy
	logger     *slog.Logger
}

// NewSampler creates a sampler. A nil strategy defaults to
// DisagreementEntropy.
func NewSampler(candidates CandidateSource, store Store, strategy Strategy, logger *slog.Logger) *Sampler {
	if strategy == nil {
		strategy = DisagreementEntropy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		candidates: candidates,
		store:      store,
		strategy:   strategy,
		logger:     logger.With("component", "learning.sampler", "strategy", strategy.Name()),
	}
}

// Sample returns up to n candidates ordered by descending uncertainty; ties
// break on candidate key so the ranking is deterministic. n <= 0 selects
// DefaultSampleSize.
func (s *Sampler) Sample(ctx context.Context, agent string, n int) ([]*RankedCandidate, error) {
	if n <= 0 {
		n = DefaultSampleSize
	}

	all, err := s.candidates.ListCandidates(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates for %s: %w", agent, err)
	}

	ranked := make([]*RankedCandidate, 0, len(all))
	for _, c := range all {
		labeled, err := s.store.Contains(ctx, c.Source, c.SourceID)
		if err != nil {
			return nil, err
		}
		if labeled {
			continue
		}
		ranked = append(ranked, &RankedCandidate{Candidate: c, Score: s.strategy.Score(c)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Key() < ranked[j].Key()
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	s.logger.Info("uncertainty sample drawn", "agent", agent, "candidates", len(all), "selected", len(ranked))
	return ranked, nil
}

func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}
