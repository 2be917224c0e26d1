package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Category groups events by the subsystem that produced them.
type Category string

const (
	CategoryApproval  Category = "approval"
	CategoryGuardrail Category = "guardrail"
	CategoryBundle    Category = "bundle"
	CategoryTraining  Category = "training"
)

// Event is one audit trail entry.
type Event struct {
	ID       string            `json:"id"`
	Time     time.Time         `json:"time"`
	Category Category          `json:"category"`
	Kind     string            `json:"kind"`
	Agent    string            `json:"agent,omitempty"`
	Action   string            `json:"action,omitempty"`
	Outcome  string            `json:"outcome,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`

	// PayloadHash is the SHA-256 hash of the canonical detail encoding.
	PayloadHash string `json:"payload_hash"`
}

// NewEvent builds an event with a fresh id, the current time, and the
// payload hash filled in.
func NewEvent(category Category, kind, agent, action, outcome string, detail map[string]string) *Event {
	e := &Event{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Category: category,
		Kind:     kind,
		Agent:    agent,
		Action:   action,
		Outcome:  outcome,
		Detail:   detail,
	}
	e.PayloadHash = hashDetail(detail)
	return e
}

// hashDetail hashes the detail map with keys in sorted order so the hash is
// stable regardless of map iteration.
func hashDetail(detail map[string]string) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(detail[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalJSONLine encodes the event as a single JSON line for export.
func (e *Event) MarshalJSONLine() ([]byte, error) {
	return json.Marshal(e)
}
