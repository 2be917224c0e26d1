package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer is the keyed-hash capability used to sign and verify approval
// payloads. It is injected into the Service so tests can supply deterministic
// keys.
type Signer interface {
	// Sign computes the keyed hash of the payload.
	Sign(payload []byte) []byte

	// Verify compares the payload's signature in constant time.
	Verify(payload, signature []byte) bool
}

// HMACSigner signs payloads with HMAC-SHA256 over a server-held secret.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner creates a signer from a secret key. The key must be at least
// 16 bytes.
func NewHMACSigner(key []byte) (*HMACSigner, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("hmac key too short: %d bytes (min 16)", len(key))
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return &HMACSigner{key: cp}, nil
}

// Sign computes HMAC-SHA256 of the payload.
func (s *HMACSigner) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify recomputes the signature and compares in constant time.
func (s *HMACSigner) Verify(payload, signature []byte) bool {
	return hmac.Equal(s.Sign(payload), signature)
}

// canonicalPayload builds the deterministic byte encoding the signature
// covers. Fields are newline-separated in a fixed order with the expiry as a
// Unix timestamp, so the encoding is stable across processes and languages.
func canonicalPayload(id, agent, action, contextHash string, decision Decision, expiresAt time.Time) []byte {
	var b strings.Builder
	b.WriteString("warden.approval.v1\n")
	b.WriteString(id)
	b.WriteByte('\n')
	b.WriteString(agent)
	b.WriteByte('\n')
	b.WriteString(action)
	b.WriteByte('\n')
	b.WriteString(contextHash)
	b.WriteByte('\n')
	b.WriteString(string(decision))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(expiresAt.Unix(), 10))
	return []byte(b.String())
}

// HashContext computes the canonical SHA-256 hash of a context snapshot.
// Callers must pass a deterministic encoding of the context (the guardrail
// executor encodes context fields sorted by key).
func HashContext(snapshot []byte) string {
	sum := sha256.Sum256(snapshot)
	return hex.EncodeToString(sum[:])
}
