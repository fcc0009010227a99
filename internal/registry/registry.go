package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subgen/internal/logging"
	"subgen/internal/task"
)

// ErrNotFound reports an unknown task identifier.
var ErrNotFound = errors.New("task not found")

// Registry is the in-memory task collection with SQLite write-through.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*task.Task
	store  *Store
	logger *slog.Logger
}

// New builds a registry backed by store and reloads any persisted tasks.
// Tasks found mid-flight from a previous run are parked as paused so the
// scheduler can resume them cleanly.
func New(ctx context.Context, store *Store, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		tasks:  make(map[string]*task.Task),
		store:  store,
		logger: logging.NewComponentLogger(logger, "registry"),
	}
	if store == nil {
		return r, nil
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload tasks: %w", err)
	}
	for _, t := range loaded {
		if t.Status == task.StatusProcessing {
			t.Status = task.StatusPaused
			t.ProgressMessage = "Paused after restart"
			t.UpdatedAt = time.Now().UTC()
			if err := store.Update(ctx, t); err != nil {
				return nil, fmt.Errorf("park in-flight task %s: %w", t.ID, err)
			}
			r.logger.Info("parked in-flight task after restart",
				logging.String(logging.FieldTaskID, t.ID),
				logging.String(logging.FieldStage, string(t.Stage)))
		}
		r.tasks[t.ID] = t
	}
	if len(loaded) > 0 {
		r.logger.Info("reloaded tasks", logging.Int("count", len(loaded)))
	}
	return r, nil
}

// Create registers a new pending task for the given source file and persists
// it. The returned task is a copy.
func (r *Registry) Create(ctx context.Context, sourcePath string, sizeBytes int64, opts task.Options) (*task.Task, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return nil, errors.New("source path is required")
	}
	now := time.Now().UTC()
	t := &task.Task{
		ID:            uuid.NewString(),
		SourcePath:    sourcePath,
		FileName:      filepath.Base(sourcePath),
		FileSizeBytes: sizeBytes,
		Status:        task.StatusPending,
		Stage:         task.StageIdle,
		Options:       opts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Insert(ctx, t); err != nil {
			r.mu.Lock()
			delete(r.tasks, t.ID)
			r.mu.Unlock()
			return nil, err
		}
	}
	return t.Clone(), nil
}

// Get returns a copy of the task with the given identifier.
func (r *Registry) Get(id string) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

// List returns copies of tasks matching the status filter, oldest first. An
// empty filter returns every task.
func (r *Registry) List(statuses ...task.Status) []*task.Task {
	var filter map[task.Status]struct{}
	if len(statuses) > 0 {
		filter = make(map[task.Status]struct{}, len(statuses))
		for _, status := range statuses {
			filter[status] = struct{}{}
		}
	}

	r.mu.RLock()
	tasks := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if filter != nil {
			if _, ok := filter[t.Status]; !ok {
				continue
			}
		}
		tasks = append(tasks, t.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Update applies mutate to the task under the registry lock and persists the
// result. The mutator sees the live task; returning an error aborts the update
// without persisting. The returned task is a copy of the updated state.
func (r *Registry) Update(ctx context.Context, id string, mutate func(*task.Task) error) (*task.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := mutate(t); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()
	snapshot := t.Clone()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Update(ctx, snapshot); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

// Transition moves the task to a new status through the state machine.
func (r *Registry) Transition(ctx context.Context, id string, to task.Status) (*task.Task, error) {
	return r.Update(ctx, id, func(t *task.Task) error {
		return t.Transition(to)
	})
}

// Delete removes a task from the registry and the store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if r.store != nil {
		if _, err := r.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RetryTask resets a failed task back to pending so it can be resubmitted.
// This is an explicit reset outside the state machine; everything except the
// original submission parameters is cleared.
func (r *Registry) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	return r.Update(ctx, id, func(t *task.Task) error {
		if t.Status != task.StatusFailed {
			return fmt.Errorf("task %s is %s, only failed tasks can be retried", id, t.Status)
		}
		t.Status = task.StatusPending
		t.Stage = task.StageIdle
		t.Progress = 0
		t.ProgressMessage = "Retry requested"
		t.Error = ""
		t.Subtitles = nil
		t.Segments = nil
		t.AudioPath = ""
		t.OutputPath = ""
		t.CompletedAt = nil
		return nil
	})
}

// Stats returns a count of tasks grouped by status.
func (r *Registry) Stats() map[task.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[task.Status]int)
	for _, t := range r.tasks {
		stats[t.Status]++
	}
	return stats
}

// PruneCompleted removes completed tasks older than cutoff from memory and
// the store, returning how many were removed.
func (r *Registry) PruneCompleted(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	var removed []string
	for id, t := range r.tasks {
		if t.Status != task.StatusCompleted || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if _, err := r.store.DeleteCompletedBefore(ctx, cutoff); err != nil {
			return len(removed), err
		}
	}
	if len(removed) > 0 {
		r.logger.Info("pruned completed tasks", logging.Int("count", len(removed)))
	}
	return len(removed), nil
}
