// Package scheduler admits tasks into the pipeline under a bounded slot
// count. Admission is FIFO; a paused task frees its slot immediately and
// re-queues on resume, picking up from its persisted artifacts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subgen/internal/logging"
	"subgen/internal/pipeline"
	"subgen/internal/progress"
	"subgen/internal/stage"
	"subgen/internal/stages"
	"subgen/internal/task"
)

// ErrStopped reports an operation against a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

type runHandle struct {
	cp     *stage.Checkpoint
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the waiting queue and the running set.
type Scheduler struct {
	env    *stages.Env
	runner *pipeline.Runner
	logger *slog.Logger

	slots int
	grace time.Duration

	mu          sync.Mutex
	waiting     []string
	running     map[string]*runHandle
	queuePaused bool
	stopped     bool
	wg          sync.WaitGroup
}

// New builds a scheduler over the stage environment.
func New(env *stages.Env, runner *pipeline.Runner) *Scheduler {
	slots := env.Config.Pipeline.MaxConcurrentTasks
	if slots < 1 {
		slots = 1
	}
	return &Scheduler{
		env:     env,
		runner:  runner,
		logger:  logging.NewComponentLogger(env.Logger, "scheduler"),
		slots:   slots,
		grace:   time.Duration(env.Config.Pipeline.CancelGraceMillis) * time.Millisecond,
		running: make(map[string]*runHandle),
	}
}

// Submit queues a pending task for processing. Admission happens immediately
// when a slot is free, so the caller observes the processing status on
// return if the task was admitted.
func (s *Scheduler) Submit(ctx context.Context, taskID string) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusPending {
		return fmt.Errorf("task %s is %s, only pending tasks can be submitted", taskID, t.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.enqueuedLocked(taskID) {
		return nil
	}
	s.waiting = append(s.waiting, taskID)
	s.pumpLocked(ctx)
	return nil
}

// StartQueue submits every pending task in creation order.
func (s *Scheduler) StartQueue(ctx context.Context) int {
	pending := s.env.Registry.List(task.StatusPending)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	added := 0
	for _, t := range pending {
		if s.enqueuedLocked(t.ID) {
			continue
		}
		s.waiting = append(s.waiting, t.ID)
		added++
	}
	s.pumpLocked(ctx)
	return added
}

// PauseTask asks a running task to yield at its next checkpoint. The slot
// frees as soon as the stage acknowledges; waiting tasks then admit.
func (s *Scheduler) PauseTask(taskID string) error {
	s.mu.Lock()
	handle, running := s.running[taskID]
	s.mu.Unlock()
	if !running {
		t, err := s.env.Registry.Get(taskID)
		if err != nil {
			return err
		}
		return fmt.Errorf("task %s is %s, only processing tasks can be paused", taskID, t.Status)
	}
	handle.cp.RequestPause()
	return nil
}

// ResumeTask re-queues a paused task. It continues from its persisted
// artifacts rather than restarting.
func (s *Scheduler) ResumeTask(ctx context.Context, taskID string) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusPaused {
		return fmt.Errorf("task %s is %s, only paused tasks can be resumed", taskID, t.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.enqueuedLocked(taskID) {
		return nil
	}
	s.waiting = append(s.waiting, taskID)
	s.env.Bus.Publish(progress.Event{TaskID: taskID, Kind: progress.KindResumed, Stage: t.Stage, Progress: t.Progress, Message: "Resumed"})
	s.pumpLocked(ctx)
	return nil
}

// PauseQueue stops admissions and asks every running task to yield.
func (s *Scheduler) PauseQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuePaused = true
	for _, handle := range s.running {
		handle.cp.RequestPause()
	}
}

// ResumeQueue re-opens admissions and re-queues every paused task.
func (s *Scheduler) ResumeQueue(ctx context.Context) {
	paused := s.env.Registry.List(task.StatusPaused)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuePaused = false
	for _, t := range paused {
		if s.enqueuedLocked(t.ID) {
			continue
		}
		s.waiting = append(s.waiting, t.ID)
	}
	s.pumpLocked(ctx)
}

// CancelTask cancels a task in any non-terminal state. Cancelling a finished
// or already cancelled task is a no-op.
func (s *Scheduler) CancelTask(ctx context.Context, taskID string) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if t.Terminal() {
		return nil
	}

	s.mu.Lock()
	s.removeWaitingLocked(taskID)
	handle, running := s.running[taskID]
	s.mu.Unlock()

	if !running {
		// Pending or paused; mark cancelled directly.
		return s.markCancelled(ctx, taskID)
	}

	handle.cancel()
	select {
	case <-handle.done:
		return nil
	case <-time.After(s.graceOrDefault()):
	case <-ctx.Done():
		return ctx.Err()
	}

	// The stage did not acknowledge in time. Abandon it: mark the task
	// cancelled now; the runner's own terminal write becomes a no-op.
	s.logger.Warn("cancel grace expired, abandoning task",
		logging.String(logging.FieldTaskID, taskID))
	return s.markCancelled(ctx, taskID)
}

// CancelQueue cancels every non-terminal task.
func (s *Scheduler) CancelQueue(ctx context.Context) error {
	var firstErr error
	for _, t := range s.env.Registry.List(task.StatusPending, task.StatusPaused, task.StatusProcessing) {
		if err := s.CancelTask(ctx, t.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop pauses every running task and waits for the runners to finish. The
// context bounds the wait.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.waiting = nil
	for _, handle := range s.running {
		handle.cp.RequestPause()
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunningCount reports how many tasks hold slots.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// WaitingCount reports how many tasks await a slot.
func (s *Scheduler) WaitingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

func (s *Scheduler) graceOrDefault() time.Duration {
	if s.grace <= 0 {
		return 5 * time.Second
	}
	return s.grace
}

func (s *Scheduler) markCancelled(ctx context.Context, taskID string) error {
	transitioned := false
	updated, err := s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		if t.Terminal() {
			return nil
		}
		if err := t.Transition(task.StatusCancelled); err != nil {
			return err
		}
		t.ProgressMessage = "Cancelled"
		transitioned = true
		return nil
	})
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}
	s.env.Bus.Publish(progress.Event{
		TaskID:   taskID,
		Kind:     progress.KindCancelled,
		Stage:    updated.Stage,
		Progress: updated.Progress,
		Message:  updated.ProgressMessage,
	})
	return nil
}

func (s *Scheduler) enqueuedLocked(taskID string) bool {
	if _, running := s.running[taskID]; running {
		return true
	}
	for _, id := range s.waiting {
		if id == taskID {
			return true
		}
	}
	return false
}

func (s *Scheduler) removeWaitingLocked(taskID string) {
	for i, id := range s.waiting {
		if id == taskID {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// pumpLocked admits waiting tasks while slots are free. The status
// transition happens here, synchronously, so a successful Submit or Resume is
// immediately observable as processing.
func (s *Scheduler) pumpLocked(ctx context.Context) {
	for !s.queuePaused && !s.stopped && len(s.running) < s.slots && len(s.waiting) > 0 {
		taskID := s.waiting[0]
		s.waiting = s.waiting[1:]

		if _, err := s.env.Registry.Transition(ctx, taskID, task.StatusProcessing); err != nil {
			// Raced with a cancel or delete; skip it.
			s.logger.Warn("skipping unadmittable task",
				logging.String(logging.FieldTaskID, taskID),
				logging.Error(err))
			continue
		}

		runCtx, cancel := context.WithCancel(context.Background())
		handle := &runHandle{
			cp:     &stage.Checkpoint{},
			cancel: cancel,
			done:   make(chan struct{}),
		}
		s.running[taskID] = handle
		s.wg.Add(1)

		go func(taskID string, handle *runHandle) {
			defer s.wg.Done()
			defer cancel()

			outcome, err := s.runner.Run(runCtx, taskID, handle.cp)
			if err != nil && outcome != pipeline.OutcomeFailed {
				s.logger.Error("pipeline run error",
					logging.String(logging.FieldTaskID, taskID),
					logging.Error(err))
			}
			close(handle.done)

			s.mu.Lock()
			delete(s.running, taskID)
			s.pumpLocked(context.Background())
			s.mu.Unlock()
		}(taskID, handle)
	}
}
