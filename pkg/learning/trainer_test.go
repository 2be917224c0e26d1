package learning

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"warden-hq/warden/pkg/bundle"
)

// ============================================================================
// Trainer Tests
// ============================================================================

func TestTrain_InsufficientData(t *testing.T) {
	store := NewMemoryStore()
	trainer := NewTrainer(store, bundle.NewManager(nil, nil), nil, WithMinExamples(5))
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		store.Add(ctx, example("approval", fmt.Sprintf("a-%d", i), "triage", true, 80, now.Add(-time.Hour)))
	}

	_, err := trainer.Train(ctx, "triage")
	var insufficient *TrainingDataInsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected TrainingDataInsufficientError, got %v", err)
	}
	if insufficient.Have != 3 || insufficient.Need != 5 {
		t.Errorf("Unexpected counts: %+v", insufficient)
	}
}

func TestTrain_RegistersDraftWithDiff(t *testing.T) {
	store := NewMemoryStore()
	manager := bundle.NewManager(nil, nil)
	trainer := NewTrainer(store, manager, nil, WithMinExamples(4))
	ctx := context.Background()
	now := time.Now()

	// Perfectly separable on risk_score: correct below 50, wrong above.
	values := []struct {
		risk  float64
		label bool
	}{
		{10, true}, {20, true}, {30, true},
		{70, false}, {80, false}, {90, false},
	}
	for i, v := range values {
		store.Add(ctx, &Example{
			Source:     "approval",
			SourceID:   fmt.Sprintf("a-%d", i),
			Agent:      "triage",
			ActionType: "quarantine",
			Features:   map[string]float64{"risk_score": v.risk},
			Label:      v.label,
			Confidence: 90,
			Timestamp:  now.Add(-time.Hour),
		})
	}

	result, err := trainer.Train(ctx, "triage")
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if result.Examples != 6 {
		t.Errorf("Expected 6 examples used, got %d", result.Examples)
	}
	if result.Bundle.State != bundle.StateDraft {
		t.Errorf("Expected a draft bundle, got %s", result.Bundle.State)
	}
	if got := result.Bundle.Thresholds["risk_score"]; got != 50 {
		t.Errorf("Expected split at the midpoint 50, got %v", got)
	}
	// With no active bundle every threshold appears in the diff.
	if len(result.Diff) != 1 || result.Diff[0].Key != "risk_score" {
		t.Errorf("Unexpected diff: %+v", result.Diff)
	}

	got, err := manager.Get("triage", result.Bundle.Version)
	if err != nil {
		t.Fatalf("Draft not registered with the manager: %v", err)
	}
	if got.Thresholds["risk_score"] != 50 {
		t.Errorf("Registered draft differs: %+v", got.Thresholds)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	build := func() *TrainResult {
		store := NewMemoryStore()
		for i := 0; i < 10; i++ {
			store.Add(ctx, &Example{
				Source:     "approval",
				SourceID:   fmt.Sprintf("a-%d", i),
				Agent:      "triage",
				ActionType: "quarantine",
				Features: map[string]float64{
					"risk_score": float64(i * 10),
					"amount":     float64(100 - i),
				},
				Label:      i < 5,
				Confidence: 90,
				Timestamp:  now.Add(-time.Hour),
			})
		}
		trainer := NewTrainer(store, bundle.NewManager(nil, nil), nil, WithMinExamples(4))
		result, err := trainer.Train(ctx, "triage")
		if err != nil {
			t.Fatalf("Train failed: %v", err)
		}
		return result
	}

	first := build()
	second := build()
	if len(first.Bundle.Thresholds) != len(second.Bundle.Thresholds) {
		t.Fatalf("Threshold sets differ: %v vs %v", first.Bundle.Thresholds, second.Bundle.Thresholds)
	}
	for k, v := range first.Bundle.Thresholds {
		if second.Bundle.Thresholds[k] != v {
			t.Errorf("Threshold %s not deterministic: %v vs %v", k, v, second.Bundle.Thresholds[k])
		}
	}
}

// ============================================================================
// Threshold Fitting Tests
// ============================================================================

func TestFitThresholds_TiesResolveToLowestSplit(t *testing.T) {
	// Both splits below 20 and below 30 separate equally well; the fit must
	// pick the lower midpoint.
	now := time.Now()
	examples := []*Example{
		{Source: "s", SourceID: "1", Agent: "a", Features: map[string]float64{"f": 10}, Label: true, Timestamp: now},
		{Source: "s", SourceID: "2", Agent: "a", Features: map[string]float64{"f": 20}, Label: false, Timestamp: now},
		{Source: "s", SourceID: "3", Agent: "a", Features: map[string]float64{"f": 30}, Label: false, Timestamp: now},
	}
	thresholds := fitThresholds(examples)
	if got := thresholds["f"]; got != 15 {
		t.Errorf("Expected lowest winning split 15, got %v", got)
	}
}

func TestFitThresholds_SkipsSparseFeatures(t *testing.T) {
	now := time.Now()
	examples := []*Example{
		{Source: "s", SourceID: "1", Agent: "a", Features: map[string]float64{"f": 10, "rare": 1}, Label: true, Timestamp: now},
		{Source: "s", SourceID: "2", Agent: "a", Features: map[string]float64{"f": 90}, Label: false, Timestamp: now},
	}
	thresholds := fitThresholds(examples)
	if _, ok := thresholds["rare"]; ok {
		t.Error("Features with a single observation must not produce a threshold")
	}
	if got := thresholds["f"]; got != 50 {
		t.Errorf("Expected split 50, got %v", got)
	}
}
