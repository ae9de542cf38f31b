package local

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
)

const DefaultQueueSize = 64

type task struct {
	id  string
	job docrag.IngestJob
}

// Dispatcher is an in-process worker pool. Dispatch returns once the job is
// queued; workers started by Run process jobs in the background.
type Dispatcher struct {
	tasks   chan task
	workers int
	timeout time.Duration

	closed  bool
	done    chan struct{}
	mu      sync.RWMutex
	sending sync.WaitGroup
	wg      sync.WaitGroup

	log *zap.Logger
}

func NewDispatcher(workers int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}

	return &Dispatcher{
		tasks:   make(chan task, DefaultQueueSize),
		done:    make(chan struct{}),
		workers: workers,
		timeout: timeout,
		log: zap.L().With(
			zap.String("component", "dispatcher"),
			zap.String("queue", "local"),
		),
	}
}

// Dispatch queues job, waiting while the queue is full until ctx is done or
// the dispatcher is closed.
func (d *Dispatcher) Dispatch(ctx context.Context, job docrag.IngestJob) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return docrag.ErrDispatcherClosed
	}

	d.sending.Add(1)
	d.mu.RUnlock()

	defer d.sending.Done()

	t := task{
		id:  uuid.NewString(),
		job: job,
	}

	select {
	case d.tasks <- t:
		d.log.Debug("job queued",
			zap.String("job_id", t.id),
			zap.Int64("document_id", job.DocumentID),
		)

		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-d.done:
		return docrag.ErrDispatcherClosed
	}
}

// Run starts the workers. They stop when ctx is cancelled or the dispatcher
// is closed.
func (d *Dispatcher) Run(ctx context.Context, handler docrag.JobHandler) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, handler)
	}
}

func (d *Dispatcher) work(ctx context.Context, handler docrag.JobHandler) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-d.tasks:
			if !ok {
				return
			}

			d.handle(ctx, handler, t)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, handler docrag.JobHandler, t task) {
	log := d.log.With(
		zap.String("job_id", t.id),
		zap.Int64("document_id", t.job.DocumentID),
	)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()

	if err := handler(ctx, t.job); err != nil {
		log.Error(err.Error())
		return
	}

	log.Info("job done", zap.Duration("elapsed", time.Since(start)))
}

// Close stops accepting jobs, releases callers blocked on a full queue and
// waits for running workers to drain the queue.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}

	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.sending.Wait()
	close(d.tasks)

	d.wg.Wait()
	return nil
}
