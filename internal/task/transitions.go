package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition reports a status change outside the allowed edges.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTaskFinished reports a status change attempted on a terminal task.
	ErrTaskFinished = errors.New("task already finished")
)

// transitions enumerates the legal status edges. Cancellation is additionally
// allowed from every non-terminal status.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusProcessing: {},
	},
	StatusProcessing: {
		StatusPaused:    {},
		StatusCompleted: {},
		StatusFailed:    {},
	},
	StatusPaused: {
		StatusProcessing: {},
	},
}

// CanTransition validates a status change against the state machine.
func CanTransition(from, to Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTaskFinished, from, to)
	}
	if to == StatusCancelled {
		return nil
	}
	if allowed, ok := transitions[from]; ok {
		if _, ok := allowed[to]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Transition applies a validated status change, stamping CompletedAt when a
// terminal status is reached.
func (t *Task) Transition(to Status) error {
	if err := CanTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return nil
}
