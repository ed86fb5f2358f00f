// Package background runs best-effort side effects off the request path.
// Submitting never blocks: a full queue drops the task with a warning, and
// task errors are logged, never returned to the submitter.
package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Runner struct {
	tasks   chan Task
	timeout time.Duration
	wg      sync.WaitGroup

	// mu guards closed; senders hold it shared so Close cannot close tasks
	// under an in-flight send.
	mu     sync.RWMutex
	closed bool
}

func NewRunner(workers, queueSize int, timeout time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	r := &Runner{
		tasks:   make(chan Task, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.processLoop()
	}
	return r
}

// Go enqueues fn and reports whether it was accepted. After Close every
// task is dropped.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		slog.Warn("background runner closed, dropping task", "task", name)
		return false
	}
	select {
	case r.tasks <- Task{Name: name, Fn: fn}:
		return true
	default:
		slog.Warn("background queue full, dropping task", "task", name)
		return false
	}
}

// Close stops accepting work and waits for queued tasks to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.tasks)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) processLoop() {
	defer r.wg.Done()
	for t := range r.tasks {
		r.run(t)
	}
}

func (r *Runner) run(t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("background task panicked", "task", t.Name, "panic", p)
		}
	}()

	if err := t.Fn(ctx); err != nil {
		slog.Warn("background task failed", "task", t.Name, "error", err)
	}
}
