// Package pool provides a bounded goroutine pool for detached work such as
// background persistence and advisory fan-out.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// Config configures the pool.
type Config struct {
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// TaskTimeout bounds each task when > 0.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`

	// ErrorHandler receives every task error, including recovered panics.
	ErrorHandler func(name string, err error) `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		QueueSize:   256,
		TaskTimeout: 10 * time.Second,
	}
}

type job struct {
	name string
	task Task
	ctx  context.Context
}

// Pool runs submitted tasks on a fixed set of workers fed by a bounded queue.
// Submit never blocks: a full queue rejects the task.
type Pool struct {
	queue   chan job
	cfg     Config
	closed  atomic.Bool
	closeMu sync.RWMutex
	wg      sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates a pool and starts its workers.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	p := &Pool{
		queue: make(chan job, cfg.QueueSize),
		cfg:   cfg,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues task without waiting for it. The task receives a context
// detached from ctx's cancellation but carrying its values.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case p.queue <- job{name: name, task: task, ctx: context.WithoutCancel(ctx)}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.active.Add(1)
		err := p.run(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			if p.cfg.ErrorHandler != nil {
				p.cfg.ErrorHandler(j.name, err)
			}
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", j.name, r)
		}
	}()

	ctx := j.ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}
	return j.task(ctx)
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed.Swap(true) {
		p.closeMu.Unlock()
		return
	}
	close(p.queue)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.cfg.Workers,
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
