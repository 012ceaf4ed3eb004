// Package worker runs CPU-heavy cryptographic work (key agreement, signing,
// iteration calibration) on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrPoolShutdown is returned by Submit after Shutdown, and resolves the
// futures of tasks that were queued but never started.
var ErrPoolShutdown = errors.New("worker pool shut down")

// Task is a unit of work.
type Task func() (any, error)

// Future is the pending result of a submitted Task.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result any, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	mu      sync.RWMutex
	jobs    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	size    int
	stopped bool
}

// NewPool starts size workers. size <= 0 uses one worker per CPU.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		jobs: make(chan job, size*4),
		quit: make(chan struct{}),
		size: size,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewPool",
		"workers":  size,
	}).Debug("Worker pool started")
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		// Shutdown wins over queued work.
		select {
		case <-p.quit:
			return
		default:
		}
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	if err := j.ctx.Err(); err != nil {
		j.future.resolve(nil, err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pool.run",
				"panic":    fmt.Sprint(r),
			}).Error("Task panicked")
			j.future.resolve(nil, fmt.Errorf("task panicked: %v", r))
		}
	}()
	result, err := j.task()
	j.future.resolve(result, err)
}

// Submit queues task. It blocks while the queue is full, until ctx is done
// or the pool shuts down. A task whose ctx ends before it starts is not run.
func (p *Pool) Submit(ctx context.Context, task Task) (*Future, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrPoolShutdown
	}

	f := newFuture()
	select {
	case p.jobs <- job{ctx: ctx, task: task, future: f}:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolShutdown
	}
}

// Go submits task and waits for its result.
func (p *Pool) Go(ctx context.Context, task Task) (any, error) {
	f, err := p.Submit(ctx, task)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Shutdown stops accepting work, resolves queued tasks that have not
// started with ErrPoolShutdown and waits for running tasks to return.
func (p *Pool) Shutdown() {
	stop := func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			return false
		}
		p.stopped = true
		close(p.quit)
		return true
	}
	if !stop() {
		return
	}
	p.wg.Wait()

	discarded := 0
	for {
		select {
		case j := <-p.jobs:
			j.future.resolve(nil, ErrPoolShutdown)
			discarded++
		default:
			logrus.WithFields(logrus.Fields{
				"function":  "Pool.Shutdown",
				"discarded": discarded,
			}).Debug("Worker pool stopped")
			return
		}
	}
}
