package learning

import (
	"errors"
	"fmt"
)

// ErrExampleNotFound indicates no example exists with the given identity.
var ErrExampleNotFound = errors.New("labeled example not found")

// TrainingDataInsufficientError indicates the trainer did not have enough
// labeled examples to derive thresholds.
type TrainingDataInsufficientError struct {
	Agent string
	Have  int
	Need  int
}

// Error returns the error message.
func (e *TrainingDataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient training data for %s: have %d examples, need %d", e.Agent, e.Have, e.Need)
}
