// Package stage defines the execution contract shared by all pipeline
// stages: the executor interface, the cooperative pause checkpoint, the
// retry policy for provider calls, and the global network limiter.
package stage

import (
	"context"
	"errors"
	"sync/atomic"

	"subgen/internal/task"
)

// ErrPaused is returned from a checkpoint when a pause has been requested.
// The runner treats it as a clean yield, not a failure.
var ErrPaused = errors.New("pause requested")

// Executor runs one pipeline stage for a task. Executors read and persist
// task state through the registry; only the task identifier is passed in so
// a resumed task re-derives its position from persisted data.
type Executor interface {
	Stage() task.Stage
	Run(ctx context.Context, taskID string, cp *Checkpoint) error
}

// Checkpoint is the cooperative pause and cancel gate. Stages call Check at
// natural boundaries (between segments, between batches); a pending pause
// surfaces as ErrPaused and a dead context surfaces as its error.
type Checkpoint struct {
	paused atomic.Bool
}

// RequestPause arms the checkpoint. The running stage yields at its next
// Check call.
func (c *Checkpoint) RequestPause() {
	c.paused.Store(true)
}

// ClearPause disarms the checkpoint for resume.
func (c *Checkpoint) ClearPause() {
	c.paused.Store(false)
}

// PauseRequested reports whether a pause is pending.
func (c *Checkpoint) PauseRequested() bool {
	return c.paused.Load()
}

// Check returns nil when the stage may continue.
func (c *Checkpoint) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.paused.Load() {
		return ErrPaused
	}
	return nil
}
