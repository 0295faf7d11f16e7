// Package worker runs recompute jobs off the queue.
//
// A dispatcher routes every job to a worker chosen by team, so all jobs for one
// team run on the same goroutine in queue order while different teams proceed
// in parallel.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"
)

const defaultWorkerBuffer = 64

// Job is what workers read off the queue.
type Job = model.RecomputeJob

// Handler runs a single job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Queue defines how the pool receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// InMemoryWorker processes the jobs routed to it.
type InMemoryWorker struct {
	name    string
	jobs    chan Job
	handler Handler
	active  *atomic.Int64
	total   int
	done    chan struct{}
	logger  logger.Logger
}

// NewInMemoryWorker creates a worker fed through its own channel.
func NewInMemoryWorker(handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		name:    "worker",
		jobs:    make(chan Job, defaultWorkerBuffer),
		handler: handler,
		active:  new(atomic.Int64),
		total:   1,
		done:    make(chan struct{}),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Submit hands a job to the worker, blocking while its buffer is full.
func (w *InMemoryWorker) Submit(ctx context.Context, job Job) error {
	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit job %s to %s: %w", job.ID, w.name, ctx.Err())
	}
}

// Close tells the worker no more jobs are coming. Buffered jobs still run.
func (w *InMemoryWorker) Close() {
	close(w.jobs)
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Run processes jobs until the worker is closed and drained or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			_ = w.process(ctx, job)
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) error {
	start := time.Now()
	active := w.active.Add(1)
	metrics.UpdateWorkerActiveCount(int(active))
	metrics.UpdateWorkerIdleCount(w.total - int(active))
	defer func() {
		active := w.active.Add(-1)
		metrics.UpdateWorkerActiveCount(int(active))
		metrics.UpdateWorkerIdleCount(w.total - int(active))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.handler.Handle(ctx, job); err != nil {
		metrics.RecordJobFailed()
		metrics.RecordErrorByComponent("worker", "recompute")
		w.logger.Error(ctx, "recompute job failed",
			logger.String("job_id", job.ID),
			logger.Int64("team_id", job.TeamID),
			logger.Int("from_round", job.FromRound),
			logger.Error(err),
		)
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	metrics.RecordJobProcessed()
	w.logger.Debug(ctx, "recompute job done",
		logger.String("job_id", job.ID),
		logger.Int64("team_id", job.TeamID),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// Pool owns the dispatcher and a fixed set of workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	// cancel ends the context the workers run on; only Shutdown calls it.
	cancel context.CancelFunc

	dispatched chan struct{}
	stopOnce   sync.Once
	logger     logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one defaults to
// the number of CPUs.
func NewPool(workerCount int, queue Queue, handler Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	base := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(base)
	}

	p := &Pool{
		workers:    make([]*InMemoryWorker, workerCount),
		queue:      queue,
		dispatched: make(chan struct{}),
		logger:     base.logger.Named("worker-pool"),
	}

	active := new(atomic.Int64)
	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts,
			WithName("worker-"+strconv.Itoa(i)),
			withActiveCounter(active, workerCount),
		)
		p.workers[i] = NewInMemoryWorker(handler, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shard returns the index of the worker that owns teamID.
func (p *Pool) Shard(teamID int64) int {
	return int(uint64(teamID) % uint64(len(p.workers))) //nolint:gosec // modulo keeps the index in range
}

// Start launches the workers and the dispatcher. They keep running after ctx
// is cancelled and stop only through Shutdown, so queued jobs are not lost when
// the caller's context ends first.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	go p.dispatch(runCtx)
}

func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.dispatched)
	defer func() {
		for _, w := range p.workers {
			w.Close()
		}
	}()

	for job := range p.queue.Dequeue(ctx) {
		w := p.workers[p.Shard(job.TeamID)]
		if err := w.Submit(ctx, job); err != nil {
			p.logger.Warn(ctx, "dropping job on shutdown",
				logger.String("job_id", job.ID),
				logger.Error(err),
			)
			return
		}
	}
}

// Shutdown closes the queue and waits for queued jobs to finish. If ctx expires
// first the remaining jobs are abandoned and in-flight handlers are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
	})
	if p.cancel == nil {
		return nil
	}

	select {
	case <-p.dispatched:
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.cancel()
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d shutdown: %w", i, ctx.Err())
		}
	}
	p.cancel()
	return nil
}
