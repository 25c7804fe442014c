// Package background runs detached solving tasks so a solve can outlive the
// request that started it.
package background

import (
	"context"
	"log/slog"
	"sync"
)

// ProblemType selects the solving path for a scheduled task.
type ProblemType string

const (
	TypeText  ProblemType = "text"
	TypeImage ProblemType = "image"
)

// Payload carries everything a detached task needs. Images are referenced by
// filesystem path, never inlined; task payloads must stay small.
type Payload struct {
	ProblemID    string
	ProblemText  string
	ProblemType  ProblemType
	ImagePath    string
	UserQuestion string
}

// TaskFunc executes one scheduled payload. The context is cancelled when the
// task is replaced, cancelled explicitly or the runner shuts down.
type TaskFunc func(ctx context.Context, p Payload) error

type taskEntry struct {
	cancel context.CancelFunc
}

// Runner executes one goroutine per scheduled task and keeps a cancellation
// registry keyed by task ID.
type Runner struct {
	fn     TaskFunc
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*taskEntry
	wg    sync.WaitGroup
}

// NewRunner creates a runner that executes payloads with fn.
func NewRunner(fn TaskFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fn:     fn,
		logger: logger,
		tasks:  make(map[string]*taskEntry),
	}
}

// ScheduleOneOff starts a task under the given ID. Scheduling a second task
// with the same ID cancels the first.
func (r *Runner) ScheduleOneOff(taskID string, p Payload) {
	ctx, cancel := context.WithCancel(context.Background())
	entry := &taskEntry{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.tasks[taskID]; ok {
		prev.cancel()
	}
	r.tasks[taskID] = entry
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, entry, taskID, p)
}

func (r *Runner) run(ctx context.Context, entry *taskEntry, taskID string, p Payload) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		// Only clear the registry entry if it was not replaced meanwhile.
		if cur, ok := r.tasks[taskID]; ok && cur == entry {
			delete(r.tasks, taskID)
		}
		r.mu.Unlock()
		entry.cancel()
	}()

	r.logger.Info("background task started", "task_id", taskID, "type", p.ProblemType)
	if err := r.fn(ctx, p); err != nil {
		if ctx.Err() != nil {
			r.logger.Info("background task cancelled", "task_id", taskID)
			return
		}
		r.logger.Error("background task failed", "task_id", taskID, "error", err)
		return
	}
	r.logger.Info("background task completed", "task_id", taskID)
}

// Cancel stops the task with the given ID, if it is still running.
func (r *Runner) Cancel(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.tasks[taskID]; ok {
		entry.cancel()
		delete(r.tasks, taskID)
	}
}

// CancelAll stops every running task.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.tasks {
		entry.cancel()
		delete(r.tasks, id)
	}
}

// Wait blocks until all started tasks have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Len returns the number of registered tasks.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
