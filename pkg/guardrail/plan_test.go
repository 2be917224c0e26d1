package guardrail

import (
	"bytes"
	"testing"

	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
)

// ============================================================================
// Plan Tests
// ============================================================================

func TestValidate_RequiredFields(t *testing.T) {
	cases := []Plan{
		{Agent: "a", ActionType: "x"},
		{ContextID: "c", ActionType: "x"},
		{ContextID: "c", Agent: "a"},
	}
	for i, p := range cases {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	ok := Plan{ContextID: "c", Agent: "a", ActionType: "x"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Complete plan failed validation: %v", err)
	}
}

// The snapshot must be byte-identical across map iteration orders so a
// resumed plan still covers its original approval request.
func TestContextSnapshot_Canonical(t *testing.T) {
	build := func() *Plan {
		return &Plan{
			ContextID:  "ctx-1",
			Agent:      "triage",
			ActionType: "quarantine",
			Context: engine.Context{
				"risk_score": ast.Number(80),
				"env":        ast.String("prod"),
				"reviewed":   ast.Bool(true),
			},
		}
	}

	first := build().ContextSnapshot()
	for i := 0; i < 50; i++ {
		if got := build().ContextSnapshot(); !bytes.Equal(got, first) {
			t.Fatalf("Snapshot not canonical:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestContextSnapshot_SensitiveToContent(t *testing.T) {
	base := &Plan{ContextID: "c", Agent: "triage", ActionType: "quarantine",
		Context: engine.Context{"risk_score": ast.Number(80)}}

	changedValue := &Plan{ContextID: "c", Agent: "triage", ActionType: "quarantine",
		Context: engine.Context{"risk_score": ast.Number(81)}}
	if bytes.Equal(base.ContextSnapshot(), changedValue.ContextSnapshot()) {
		t.Error("Different context values must produce different snapshots")
	}

	changedAction := &Plan{ContextID: "c", Agent: "triage", ActionType: "escalate",
		Context: engine.Context{"risk_score": ast.Number(80)}}
	if bytes.Equal(base.ContextSnapshot(), changedAction.ContextSnapshot()) {
		t.Error("Different actions must produce different snapshots")
	}
}
