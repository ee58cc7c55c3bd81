// Package jobs is the in-process job runtime. Dispatch is fire-and-forget;
// execution happens on a worker pool with its own lifecycle.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/payline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("job_queue_full")
var ErrStopped = errors.New("job_runtime_stopped")

// Task is one unit of asynchronous work. A returned error is logged; the
// runtime itself does not retry.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Dispatcher interface {
	Dispatch(task Task) error
}

type Pool struct {
	log     *zap.Logger
	queue   chan Task
	workers int

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

type PoolParam struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Lifecycle fx.Lifecycle
}

func NewPool(p PoolParam) Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		log:     p.Log.Named("jobs.pool"),
		queue:   make(chan Task, p.Config.Jobs.QueueSize),
		workers: p.Config.Jobs.Workers,
		baseCtx: ctx,
		cancel:  cancel,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.stop(ctx)
		},
	})
	return pool
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.Info("worker pool started", zap.Int("workers", p.workers))
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r),
			)
		}
	}()
	if err := task.Run(p.baseCtx); err != nil {
		p.log.Error("task failed",
			zap.String("task", task.Name),
			zap.Error(err),
		)
	}
}

// Dispatch enqueues a task without blocking. A full queue is an error the
// caller decides how to handle.
func (p *Pool) Dispatch(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
	p.cancel()
	return nil
}
