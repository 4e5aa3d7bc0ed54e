package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParams is returned by Submit on a missing or oversized
	// description or an unknown priority.
	ErrInvalidParams = errors.New("invalid task parameters")

	// ErrNotFound is returned when neither the active nor the dead-letter
	// table holds the task id.
	ErrNotFound = errors.New("task not found")

	// ErrEmpty is returned by DequeueNext when no task is queued.
	ErrEmpty = errors.New("queue is empty")

	// ErrStaleGeneration is returned when a completion or failure presents
	// a generation older than the task's current one. The task is not
	// mutated.
	ErrStaleGeneration = errors.New("stale generation")

	// ErrNotAssigned is returned by Reclaim when the task is not currently
	// assigned.
	ErrNotAssigned = errors.New("task is not assigned")
)

// InvalidStateError is returned when an operation finds the task in a
// status it cannot act on.
type InvalidStateError struct {
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid task state: %s", e.Status)
}
