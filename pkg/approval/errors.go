package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no approval request exists with the given id.
	ErrNotFound = errors.New("approval request not found")

	// ErrVersionConflict indicates a concurrent transition won the CAS race.
	ErrVersionConflict = errors.New("approval request version conflict")
)

// InvalidReason classifies why verification rejected a token.
type InvalidReason string

const (
	ReasonExpired      InvalidReason = "expired"
	ReasonConsumed     InvalidReason = "consumed"
	ReasonBadSignature InvalidReason = "bad_signature"
	ReasonNotApproved  InvalidReason = "not_approved"
)

// InvalidApprovalError indicates a token failed verification. Each rejection
// cause carries a distinct reason so callers can report it precisely.
type InvalidApprovalError struct {
	ID     string
	Reason InvalidReason
}

// Error returns the error message.
func (e *InvalidApprovalError) Error() string {
	return fmt.Sprintf("invalid approval %s: %s", e.ID, e.Reason)
}

// IsInvalidApproval reports whether err is an InvalidApprovalError with the
// given reason.
func IsInvalidApproval(err error, reason InvalidReason) bool {
	var ie *InvalidApprovalError
	return errors.As(err, &ie) && ie.Reason == reason
}
