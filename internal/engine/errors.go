package engine

import (
	"errors"
	"fmt"

	"hireline/internal/domain"
)

// ErrConcurrentModification reports that an application's status moved under
// the caller between read and write.
var ErrConcurrentModification = errors.New("application modified concurrently")

// InvalidTransitionError reports a status pair outside the transition table.
type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// DanglingReferenceError reports a stored row pointing at an entity that no
// longer exists. It surfaces data corruption, not caller mistakes.
type DanglingReferenceError struct {
	Kind string
	ID   string
}

func (e DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %s referenced but missing", e.Kind, e.ID)
}

// InvalidReferenceError reports a caller-supplied id that resolves to nothing.
type InvalidReferenceError struct {
	Kind string
	ID   string
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}
