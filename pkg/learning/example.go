package learning

import (
	"fmt"
	"time"
)

// Example is one outcome-labeled training example. Its identity is the
// (Source, SourceID) pair; the store keeps at most one example per identity.
type Example struct {
	// Source names where the label came from: "approval", "feedback",
	// "curated".
	Source string

	// SourceID is the unique id within the source.
	SourceID string

	Agent      string
	ActionType string

	// Features is the fixed numeric feature vector extracted at proposal
	// time. Categorical features are one-hot encoded by the producer.
	Features map[string]float64

	// Label is the ground-truth verdict: true when the action was correct.
	Label bool

	// Confidence is the labeler's confidence in [0,100].
	Confidence int

	Timestamp time.Time
}

// Key returns the dedupe key.
func (e *Example) Key() string {
	return e.Source + "/" + e.SourceID
}

// Validate checks required fields and ranges.
func (e *Example) Validate() error {
	if e.Source == "" || e.SourceID == "" {
		return fmt.Errorf("example requires source and source_id")
	}
	if e.Agent == "" {
		return fmt.Errorf("example %s requires an agent", e.Key())
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return fmt.Errorf("example %s: confidence %d out of range [0,100]", e.Key(), e.Confidence)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("example %s requires a timestamp", e.Key())
	}
	return nil
}

// supersedes reports whether e may overwrite old: strictly newer timestamp
// and equal or higher confidence.
func (e *Example) supersedes(old *Example) bool {
	return e.Timestamp.After(old.Timestamp) && e.Confidence >= old.Confidence
}

// clone returns a copy so store internals never alias caller-held examples.
func (e *Example) clone() *Example {
	cp := *e
	if e.Features != nil {
		cp.Features = make(map[string]float64, len(e.Features))
		for k, v := range e.Features {
			cp.Features[k] = v
		}
	}
	return &cp
}
