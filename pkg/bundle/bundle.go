package bundle

import (
	"time"

	"warden-hq/warden/pkg/policy/ast"
)

// State is the lifecycle state of a bundle.
type State string

const (
	StateDraft      State = "DRAFT"
	StateProposed   State = "PROPOSED"
	StateApproved   State = "APPROVED"
	StateCanary     State = "CANARY"
	StatePromoted   State = "PROMOTED"
	StateRolledBack State = "ROLLED_BACK"
)

// Bundle is a versioned configuration snapshot for one agent: decision
// thresholds plus an optional governing rule set. Once published (canary or
// active) a bundle is treated as immutable; transitions produce clones.
type Bundle struct {
	Agent     string
	Version   int
	State     State
	CanaryPct int

	// Thresholds are the trainer-derived decision thresholds keyed by
	// feature name (e.g. "quarantine.risk_score").
	Thresholds map[string]float64

	// Rules is the governing rule set carried by this bundle. Empty means
	// the engine's base snapshot governs.
	Rules []*ast.Rule

	CreatedAt  time.Time
	ApprovalID string

	// BackupVersion records which bundle was active when this one went
	// canary, for audit; the manager holds the actual backup snapshot.
	BackupVersion int
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	cp := *b
	if b.Thresholds != nil {
		cp.Thresholds = make(map[string]float64, len(b.Thresholds))
		for k, v := range b.Thresholds {
			cp.Thresholds[k] = v
		}
	}
	if b.Rules != nil {
		cp.Rules = make([]*ast.Rule, len(b.Rules))
		copy(cp.Rules, b.Rules)
	}
	return &cp
}

// ThresholdChange is one entry in a structured diff between two bundles.
type ThresholdChange struct {
	Key string
	Old float64
	New float64
}

// Diff computes the threshold changes from old to new, sorted by key via the
// caller. Missing keys are reported with the zero value on the absent side.
func Diff(oldB, newB *Bundle) []ThresholdChange {
	var changes []ThresholdChange
	seen := make(map[string]bool)

	if oldB != nil {
		for k, ov := range oldB.Thresholds {
			seen[k] = true
			nv, ok := lookup(newB, k)
			if !ok || nv != ov {
				changes = append(changes, ThresholdChange{Key: k, Old: ov, New: nv})
			}
		}
	}
	if newB != nil {
		for k, nv := range newB.Thresholds {
			if seen[k] {
				continue
			}
			changes = append(changes, ThresholdChange{Key: k, New: nv})
		}
	}
	return changes
}

func lookup(b *Bundle, key string) (float64, bool) {
	if b == nil || b.Thresholds == nil {
		return 0, false
	}
	v, ok := b.Thresholds[key]
	return v, ok
}
