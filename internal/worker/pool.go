// Package worker runs queries on a bounded pool and keeps a handle per
// query id so running work can be found and cancelled.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrDuplicate = errors.New("task already running")
	ErrClosed    = errors.New("pool is shut down")
)

// Task is the work of one query.
type Task func(ctx context.Context) error

// Handle tracks one submitted task.
type Handle struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the task's result. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel asks the task to stop.
func (h *Handle) Cancel() { h.cancel() }

// Pool runs at most its size tasks at once. Tasks beyond that wait for a
// slot; Submit itself never blocks.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*Handle
	wg      sync.WaitGroup
	closed  bool
	running int
}

func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("pool"),
		tasks:  map[string]*Handle{},
	}
}

// Submit schedules fn under id. An id may be reused once its previous task
// has finished.
func (p *Pool) Submit(id string, fn Task) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if _, ok := p.tasks[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	h := &Handle{ID: id, cancel: cancel, done: make(chan struct{})}
	p.tasks[id] = h
	p.wg.Add(1)
	go p.run(ctx, h, fn)
	return h, nil
}

func (p *Pool) run(ctx context.Context, h *Handle, fn Task) {
	defer p.wg.Done()
	defer func() {
		h.cancel()
		p.mu.Lock()
		delete(p.tasks, h.ID)
		p.mu.Unlock()
		close(h.done)
	}()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		h.err = err
		p.logger.Debug("task cancelled before start", zap.String("query_id", h.ID))
		return
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	p.running++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			h.err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("task panicked", zap.String("query_id", h.ID), zap.Any("panic", r))
		}
	}()
	h.err = fn(ctx)
}

// Get returns the handle of a task that has not finished yet.
func (p *Pool) Get(id string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.tasks[id]
	return h, ok
}

// Cancel cancels the task with id. It reports whether one was found.
func (p *Pool) Cancel(id string) bool {
	h, ok := p.Get(id)
	if ok {
		h.Cancel()
	}
	return ok
}

// Active is the number of tasks currently holding a slot.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pending is the number of submitted tasks that have not finished.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Shutdown refuses new tasks and waits for running ones. When ctx ends
// first, the remaining tasks are cancelled and waited for.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
