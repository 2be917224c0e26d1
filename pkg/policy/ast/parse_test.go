package ast

import (
	"strings"
	"testing"
)

// ============================================================================
// Rule Parsing Tests
// ============================================================================

func TestParseRules_BareList(t *testing.T) {
	data := []byte(`
- id: deny-quarantine
  agent: "*"
  action: quarantine
  effect: deny
  priority: 100
  condition:
    field: risk_score
    op: gte
    value: 70
- id: allow-quarantine
  agent: "*"
  action: quarantine
  effect: allow
  priority: 50
`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}

	// Sorted priority desc.
	if rules[0].ID != "deny-quarantine" {
		t.Errorf("Expected highest-priority rule first, got %s", rules[0].ID)
	}
	cond := rules[0].Condition
	if cond == nil || cond.Kind != CondGte || cond.Field != "risk_score" {
		t.Errorf("Unexpected condition: %+v", cond)
	}
	if cond.Value.Kind != ValueNumber || cond.Value.Num != 70 {
		t.Errorf("Expected numeric operand 70, got %#v", cond.Value)
	}
}

func TestParseRules_WrappedDocument(t *testing.T) {
	data := []byte(`
rules:
  - id: r1
    agent: triage
    action: "*"
    effect: allow
    priority: 1
`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Agent != "triage" {
		t.Fatalf("Unexpected rules: %+v", rules)
	}
}

func TestParseRules_SymbolicOperators(t *testing.T) {
	data := []byte(`
- id: r1
  agent: "*"
  action: "*"
  effect: deny
  priority: 10
  condition:
    field: cost
    op: ">="
    value: 5
`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if rules[0].Condition.Kind != CondGte {
		t.Errorf("Expected >= to parse as gte, got %s", rules[0].Condition.Kind)
	}
}

func TestParseRules_DuplicateIDs(t *testing.T) {
	data := []byte(`
- id: same
  agent: "*"
  action: "*"
  effect: allow
  priority: 1
- id: same
  agent: "*"
  action: "*"
  effect: deny
  priority: 2
`)
	if _, err := ParseRules(data); err == nil {
		t.Fatal("Expected error for duplicate rule ids")
	}
}

func TestParseRules_InvalidEffect(t *testing.T) {
	data := []byte(`
- id: r1
  agent: "*"
  action: "*"
  effect: maybe
  priority: 1
`)
	_, err := ParseRules(data)
	if err == nil || !strings.Contains(err.Error(), "effect") {
		t.Fatalf("Expected effect validation error, got %v", err)
	}
}

func TestMarshalRules_RoundTrip(t *testing.T) {
	original := []*Rule{
		{
			ID: "r1", Agent: "*", Action: "deploy", Effect: EffectDeny, Priority: 90,
			Condition: &Condition{
				Kind: CondAll,
				Children: []*Condition{
					{Kind: CondGte, Field: "risk_score", Value: Number(70)},
					{Kind: CondEq, Field: "env", Value: String("prod")},
				},
			},
		},
		{ID: "r2", Agent: "*", Action: "deploy", Effect: EffectAllow, Priority: 10},
	}

	data, err := MarshalRules(original)
	if err != nil {
		t.Fatalf("MarshalRules failed: %v", err)
	}
	reloaded, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules of marshaled output failed: %v", err)
	}
	if len(reloaded) != 2 {
		t.Fatalf("Expected 2 rules after round trip, got %d", len(reloaded))
	}
	if reloaded[0].ID != "r1" || reloaded[0].Effect != EffectDeny {
		t.Errorf("Round trip lost rule data: %+v", reloaded[0])
	}
	cond := reloaded[0].Condition
	if cond.Kind != CondAll || len(cond.Children) != 2 {
		t.Fatalf("Round trip lost condition tree: %+v", cond)
	}
	if !cond.Children[1].Value.Equal(String("prod")) {
		t.Errorf("Round trip lost operand: %#v", cond.Children[1].Value)
	}
}

// ============================================================================
// Value Tests
// ============================================================================

func TestValue_EqualAcrossKinds(t *testing.T) {
	if Number(1).Equal(Bool(true)) {
		t.Error("Values of different kinds must never be equal")
	}
	if !Number(2.5).Equal(Number(2.5)) {
		t.Error("Equal numbers should compare equal")
	}
}

func TestValue_CompareRequiresNumbers(t *testing.T) {
	if _, err := String("a").Compare(String("b")); err == nil {
		t.Error("Expected type error comparing strings")
	}
	cmp, err := Number(1).Compare(Number(2))
	if err != nil || cmp != -1 {
		t.Errorf("Expected -1, got %d (err %v)", cmp, err)
	}
}

// ============================================================================
// Sort Order Tests
// ============================================================================

func TestSortRules_PriorityDescIDAsc(t *testing.T) {
	rules := []*Rule{
		{ID: "b", Priority: 50},
		{ID: "a", Priority: 50},
		{ID: "c", Priority: 100},
	}
	SortRules(rules)

	got := []string{rules[0].ID, rules[1].ID, rules[2].ID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}
