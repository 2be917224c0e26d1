package bundle

import (
	"context"
	"errors"
	"testing"
)

type fixedStats struct {
	canary  Cohort
	control Cohort
}

func (s fixedStats) Cohorts(ctx context.Context, agent string) (Cohort, Cohort, error) {
	return s.canary, s.control, nil
}

// ============================================================================
// Delta Evaluator Tests
// ============================================================================

func TestDeltaEvaluator_Verdicts(t *testing.T) {
	e := DefaultDeltaEvaluator()

	cases := []struct {
		name    string
		canary  Cohort
		control Cohort
		want    VerdictAction
	}{
		{
			name:    "insufficient samples hold",
			canary:  Cohort{Samples: 50, Successes: 10},
			control: Cohort{Samples: 500, Successes: 450},
			want:    VerdictHold,
		},
		{
			// 80% canary vs 90% control: a 10-point drop beyond the 5%
			// threshold.
			name:    "quality drop rollback",
			canary:  Cohort{Samples: 500, Successes: 400},
			control: Cohort{Samples: 500, Successes: 450},
			want:    VerdictRollback,
		},
		{
			name:    "quality gain promote",
			canary:  Cohort{Samples: 500, Successes: 475},
			control: Cohort{Samples: 500, Successes: 450},
			want:    VerdictPromote,
		},
		{
			name:    "within thresholds hold",
			canary:  Cohort{Samples: 500, Successes: 452},
			control: Cohort{Samples: 500, Successes: 450},
			want:    VerdictHold,
		},
	}
	for _, tc := range cases {
		got := e.Evaluate(tc.canary, tc.control)
		if got.Action != tc.want {
			t.Errorf("%s: expected %s, got %s (%s)", tc.name, tc.want, got.Action, got.Reason)
		}
	}
}

func TestTwoProportionEvaluator_HoldsOnNoise(t *testing.T) {
	e := DefaultTwoProportionEvaluator()

	// Tiny cohorts with a large nominal delta: not significant, so hold.
	got := e.Evaluate(Cohort{Samples: 110, Successes: 88}, Cohort{Samples: 110, Successes: 97})
	if got.Action == VerdictRollback {
		t.Errorf("Expected insignificant delta to hold, got %s (%s)", got.Action, got.Reason)
	}

	// Large cohorts with the same rates are significant.
	got = e.Evaluate(Cohort{Samples: 5000, Successes: 4000}, Cohort{Samples: 5000, Successes: 4400})
	if got.Action != VerdictRollback {
		t.Errorf("Expected significant drop to roll back, got %s (%s)", got.Action, got.Reason)
	}
}

// ============================================================================
// Guard Tests
// ============================================================================

// 80% canary success vs 90% control with n >= 100 per cohort triggers an
// automatic rollback that restores the previous active bundle exactly.
func TestGuard_AutoRollback(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	deployCanary(t, m, "triage", map[string]float64{"risk": 0.5}, 10)
	if err := m.Promote(ctx, "triage"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	activeBefore := m.Active("triage")

	second, _ := m.Create(ctx, "triage", map[string]float64{"risk": 0.9}, nil)
	m.Propose(ctx, "triage", second.Version)
	m.Approve(ctx, "triage", second.Version, "a2")
	m.Apply(ctx, "triage", second.Version, "a2", 20)

	stats := fixedStats{
		canary:  Cohort{Samples: 200, Successes: 160}, // 80%
		control: Cohort{Samples: 200, Successes: 180}, // 90%
	}
	g, err := NewGuard(m, stats, DefaultDeltaEvaluator(), nil)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	verdict, err := g.Check(ctx, "triage")
	if verdict.Action != VerdictRollback {
		t.Fatalf("Expected rollback verdict, got %s", verdict.Action)
	}
	var regression *RegressionDetectedError
	if !errors.As(err, &regression) {
		t.Fatalf("Expected RegressionDetectedError, got %v", err)
	}
	if regression.CanaryVersion != second.Version {
		t.Errorf("Error names wrong version: %+v", regression)
	}

	restored := m.Active("triage")
	if restored.Version != activeBefore.Version || restored.Thresholds["risk"] != 0.5 {
		t.Errorf("Rollback did not restore the backup exactly: %+v", restored)
	}
	if m.Canary("triage") != nil {
		t.Error("Canary must be cleared after rollback")
	}
}

func TestGuard_AutoPromote(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	b := deployCanary(t, m, "triage", nil, 10)

	stats := fixedStats{
		canary:  Cohort{Samples: 200, Successes: 190}, // 95%
		control: Cohort{Samples: 200, Successes: 180}, // 90%
	}
	g, _ := NewGuard(m, stats, DefaultDeltaEvaluator(), nil)

	verdict, err := g.Check(ctx, "triage")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Action != VerdictPromote {
		t.Fatalf("Expected promote verdict, got %s (%s)", verdict.Action, verdict.Reason)
	}

	active := m.Active("triage")
	if active == nil || active.Version != b.Version || active.CanaryPct != 100 {
		t.Errorf("Expected canary promoted to 100%%, got %+v", active)
	}
}

func TestGuard_HoldsBelowMinSamples(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	deployCanary(t, m, "triage", nil, 10)

	stats := fixedStats{
		canary:  Cohort{Samples: 10, Successes: 2},
		control: Cohort{Samples: 10, Successes: 9},
	}
	g, _ := NewGuard(m, stats, DefaultDeltaEvaluator(), nil)

	verdict, err := g.Check(ctx, "triage")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Action != VerdictHold {
		t.Errorf("Expected hold below the sample floor, got %s", verdict.Action)
	}
	if m.Canary("triage") == nil {
		t.Error("Canary must survive a hold verdict")
	}
}

func TestGuard_NoCanaryHolds(t *testing.T) {
	m := NewManager(nil, nil)
	g, _ := NewGuard(m, fixedStats{}, nil, nil)

	verdict, err := g.Check(context.Background(), "triage")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Action != VerdictHold {
		t.Errorf("Expected hold without a canary, got %s", verdict.Action)
	}
}

// ============================================================================
// Cohort Stats Tests
// ============================================================================

func TestMemoryStats_AccumulatesAndResets(t *testing.T) {
	s := NewMemoryStats()
	s.RecordOutcome("triage", "canary", true)
	s.RecordOutcome("triage", "canary", false)
	s.RecordOutcome("triage", "control", true)

	canary, control, err := s.Cohorts(context.Background(), "triage")
	if err != nil {
		t.Fatalf("Cohorts failed: %v", err)
	}
	if canary.Samples != 2 || canary.Successes != 1 {
		t.Errorf("Unexpected canary cohort: %+v", canary)
	}
	if control.Samples != 1 || control.Successes != 1 {
		t.Errorf("Unexpected control cohort: %+v", control)
	}

	s.Reset("triage")
	canary, control, _ = s.Cohorts(context.Background(), "triage")
	if canary.Samples != 0 || control.Samples != 0 {
		t.Error("Reset must clear the agent's counters")
	}
}
