package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolShutdown is returned by Submit after Shutdown
var ErrPoolShutdown = errors.New("worker pool shut down")

// Task is one unit of background work
type Task func(ctx context.Context) error

// SafeGo runs fn in a goroutine bounded by timeout. Panics and errors are logged,
// never propagated.
func SafeGo(parentCtx context.Context, log *logrus.Logger, timeout time.Duration, taskName string, fn Task) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := run(ctx, fn); err != nil {
			log.WithField("task", taskName).WithError(err).Warn("Background task failed")
		}
	}()
}

// run executes fn, turning a panic into an error
func run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// WorkerPool runs submitted tasks on a fixed set of workers
type WorkerPool struct {
	workers  int
	taskName string
	timeout  time.Duration
	log      *logrus.Logger

	mu       sync.RWMutex
	closed   bool
	workCh   chan Task
	doneCh   chan struct{}
	errCh    chan error
	pending  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// NewWorkerPool starts workers that live until Shutdown or until ctx is done
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, log *logrus.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		log:      log,
		workCh:   make(chan Task, workers*16),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn. It blocks while the queue is full.
func (p *WorkerPool) Submit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolShutdown
	}

	p.pending.Add(1)
	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		p.pending.Done()
		return ErrPoolShutdown
	}
}

// Wait blocks until every submitted task has finished
func (p *WorkerPool) Wait() {
	p.pending.Wait()
}

// Shutdown stops accepting tasks and waits up to timeout for queued ones
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var err error

	p.shutdown.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			err = fmt.Errorf("worker pool %s shutdown timed out after %v", p.taskName, timeout)
		}
	})

	return err
}

// Errors receives task errors; errors are dropped when nobody drains it
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.execute(id, fn)
		}
	}
}

// drain releases waiters for tasks that will never run
func (p *WorkerPool) drain() {
	for {
		select {
		case _, ok := <-p.workCh:
			if !ok {
				return
			}
			p.pending.Done()
		default:
			return
		}
	}
}

func (p *WorkerPool) execute(id int, fn Task) {
	defer p.pending.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	if err := run(ctx, fn); err != nil {
		p.log.WithFields(logrus.Fields{"pool": p.taskName, "worker": id}).WithError(err).Debug("Task failed")
		select {
		case p.errCh <- err:
		default:
			p.log.WithField("pool", p.taskName).Warnf("Error channel full, dropping error: %v", err)
		}
	}
}
