package engine_test

import (
	"context"
	"fmt"
	"testing"

	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
	"warden-hq/warden/pkg/policy/engine/source"
)

func newEngine(t *testing.T, rules []*ast.Rule) (*engine.Engine, *source.MemorySource) {
	t.Helper()
	src := source.NewMemorySource(rules)
	eng, err := engine.New(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng, src
}

// ============================================================================
// Evaluation Order Tests
// ============================================================================

// High-priority deny with a matching condition must beat a low-priority
// allow.
func TestEvaluate_PriorityOrder(t *testing.T) {
	rules := []*ast.Rule{
		{
			ID: "deny-risky", Agent: "*", Action: "quarantine", Effect: ast.EffectDeny, Priority: 100,
			Condition: &ast.Condition{Kind: ast.CondGte, Field: "risk_score", Value: ast.Number(70)},
		},
		{ID: "allow-default", Agent: "*", Action: "quarantine", Effect: ast.EffectAllow, Priority: 50},
	}
	eng, _ := newEngine(t, rules)

	d, err := eng.Evaluate(context.Background(), "triage", "quarantine",
		engine.Context{"risk_score": ast.Number(80)})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectDeny || d.MatchedRuleID != "deny-risky" {
		t.Errorf("Expected deny by deny-risky, got %s by %q", d.Effect, d.MatchedRuleID)
	}

	// Below the threshold the low-priority allow wins.
	d, err = eng.Evaluate(context.Background(), "triage", "quarantine",
		engine.Context{"risk_score": ast.Number(30)})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectAllow || d.MatchedRuleID != "allow-default" {
		t.Errorf("Expected allow by allow-default, got %s by %q", d.Effect, d.MatchedRuleID)
	}
}

func TestEvaluate_DenyWinsAtEqualPriority(t *testing.T) {
	rules := []*ast.Rule{
		{ID: "a-allow", Agent: "*", Action: "deploy", Effect: ast.EffectAllow, Priority: 10},
		{ID: "z-deny", Agent: "*", Action: "deploy", Effect: ast.EffectDeny, Priority: 10},
	}
	eng, _ := newEngine(t, rules)

	// a-allow sorts first (id asc) but the matching deny at the same
	// priority must override it.
	d, err := eng.Evaluate(context.Background(), "any", "deploy", engine.Context{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectDeny || d.MatchedRuleID != "z-deny" {
		t.Errorf("Expected deny-wins tie-break, got %s by %q", d.Effect, d.MatchedRuleID)
	}
}

func TestEvaluate_DefaultAllow(t *testing.T) {
	eng, _ := newEngine(t, nil)

	d, err := eng.Evaluate(context.Background(), "agent", "anything", engine.Context{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectAllow || !d.Default || d.MatchedRuleID != "" {
		t.Errorf("Expected default allow with no matched rule, got %+v", d)
	}
}

func TestEvaluate_MissingFieldDoesNotMatch(t *testing.T) {
	rules := []*ast.Rule{
		{
			ID: "deny-risky", Agent: "*", Action: "*", Effect: ast.EffectDeny, Priority: 100,
			Condition: &ast.Condition{Kind: ast.CondGte, Field: "risk_score", Value: ast.Number(70)},
		},
	}
	eng, _ := newEngine(t, rules)

	d, err := eng.Evaluate(context.Background(), "a", "b", engine.Context{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectAllow {
		t.Errorf("Rule with missing context field should not match, got %s", d.Effect)
	}
}

func TestEvaluate_LogicalComposition(t *testing.T) {
	rules := []*ast.Rule{
		{
			ID: "deny-prod-risk", Agent: "*", Action: "*", Effect: ast.EffectDeny, Priority: 100,
			Condition: &ast.Condition{
				Kind: ast.CondAll,
				Children: []*ast.Condition{
					{Kind: ast.CondEq, Field: "env", Value: ast.String("prod")},
					{Kind: ast.CondAny, Children: []*ast.Condition{
						{Kind: ast.CondGt, Field: "risk_score", Value: ast.Number(90)},
						{Kind: ast.CondEq, Field: "reviewed", Value: ast.Bool(false)},
					}},
				},
			},
		},
	}
	eng, _ := newEngine(t, rules)

	cases := []struct {
		ec   engine.Context
		want ast.Effect
	}{
		{engine.Context{"env": ast.String("prod"), "risk_score": ast.Number(95), "reviewed": ast.Bool(true)}, ast.EffectDeny},
		{engine.Context{"env": ast.String("prod"), "risk_score": ast.Number(10), "reviewed": ast.Bool(false)}, ast.EffectDeny},
		{engine.Context{"env": ast.String("prod"), "risk_score": ast.Number(10), "reviewed": ast.Bool(true)}, ast.EffectAllow},
		{engine.Context{"env": ast.String("dev"), "risk_score": ast.Number(95), "reviewed": ast.Bool(false)}, ast.EffectAllow},
	}
	for i, tc := range cases {
		d, err := eng.Evaluate(context.Background(), "a", "b", tc.ec)
		if err != nil {
			t.Fatalf("case %d: Evaluate failed: %v", i, err)
		}
		if d.Effect != tc.want {
			t.Errorf("case %d: expected %s, got %s", i, tc.want, d.Effect)
		}
	}
}

// ============================================================================
// Determinism Tests
// ============================================================================

// Serializing and reloading a rule set must produce identical decisions for
// a fixed corpus of triples.
func TestEvaluate_RoundTripStability(t *testing.T) {
	rules := []*ast.Rule{
		{
			ID: "deny-risky", Agent: "*", Action: "quarantine", Effect: ast.EffectDeny, Priority: 100,
			Condition: &ast.Condition{Kind: ast.CondGte, Field: "risk_score", Value: ast.Number(70)},
		},
		{ID: "allow-triage", Agent: "triage", Action: "*", Effect: ast.EffectAllow, Priority: 60},
		{
			ID: "deny-costly", Agent: "*", Action: "*", Effect: ast.EffectDeny, Priority: 60,
			Condition: &ast.Condition{Kind: ast.CondGt, Field: "cost", Value: ast.Number(100)},
		},
	}
	eng1, _ := newEngine(t, rules)

	data, err := ast.MarshalRules(rules)
	if err != nil {
		t.Fatalf("MarshalRules failed: %v", err)
	}
	reloaded, err := ast.ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	eng2, _ := newEngine(t, reloaded)

	corpus := []struct {
		agent, action string
		ec            engine.Context
	}{
		{"triage", "quarantine", engine.Context{"risk_score": ast.Number(80)}},
		{"triage", "quarantine", engine.Context{"risk_score": ast.Number(10)}},
		{"triage", "escalate", engine.Context{"cost": ast.Number(500)}},
		{"other", "escalate", engine.Context{"cost": ast.Number(500)}},
		{"other", "escalate", engine.Context{}},
	}
	for i, tc := range corpus {
		d1, err1 := eng1.Evaluate(context.Background(), tc.agent, tc.action, tc.ec)
		d2, err2 := eng2.Evaluate(context.Background(), tc.agent, tc.action, tc.ec)
		if err1 != nil || err2 != nil {
			t.Fatalf("case %d: evaluate errors: %v / %v", i, err1, err2)
		}
		if d1.Effect != d2.Effect || d1.MatchedRuleID != d2.MatchedRuleID {
			t.Errorf("case %d: decisions diverged after round trip: %+v vs %+v", i, d1, d2)
		}
	}
}

// ============================================================================
// Hot Reload Tests
// ============================================================================

func TestReload_AtomicSnapshotSwap(t *testing.T) {
	rules := []*ast.Rule{
		{ID: "allow-all", Agent: "*", Action: "*", Effect: ast.EffectAllow, Priority: 1},
	}
	eng, src := newEngine(t, rules)

	before := eng.ActiveSnapshot()

	src.Replace([]*ast.Rule{
		{ID: "deny-all", Agent: "*", Action: "*", Effect: ast.EffectDeny, Priority: 1},
	})
	if err := eng.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	after := eng.ActiveSnapshot()
	if before == after {
		t.Fatal("Reload must publish a new snapshot")
	}

	d, err := eng.Evaluate(context.Background(), "a", "b", engine.Context{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Effect != ast.EffectDeny {
		t.Errorf("Expected deny after reload, got %s", d.Effect)
	}
}

func TestEvaluate_ConcurrentWithReload(t *testing.T) {
	rules := []*ast.Rule{
		{ID: "allow-all", Agent: "*", Action: "*", Effect: ast.EffectAllow, Priority: 1},
	}
	eng, src := newEngine(t, rules)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			src.Replace([]*ast.Rule{
				{ID: fmt.Sprintf("allow-%d", i), Agent: "*", Action: "*", Effect: ast.EffectAllow, Priority: 1},
			})
			if err := eng.Reload(context.Background()); err != nil {
				t.Errorf("Reload failed: %v", err)
				return
			}
		}
	}()

	// Concurrent evaluations must always see a complete snapshot: exactly
	// one matching allow rule, never zero rules mid-swap.
	for i := 0; i < 200; i++ {
		d, err := eng.Evaluate(context.Background(), "a", "b", engine.Context{})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if d.Effect != ast.EffectAllow || d.Default {
			t.Fatalf("Evaluation saw a half-updated rule set: %+v", d)
		}
	}
	<-done
}
