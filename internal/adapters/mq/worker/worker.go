// Package worker delivers queued cell saves to the server.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/salesgrid/internal/adapters/mq/queue"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	defaultRetries        = 3
	defaultBackoff        = 500 * time.Millisecond
	maxBackoff            = 30 * time.Second
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Sender performs one save request.
type Sender interface {
	Send(ctx context.Context, j queue.Job) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, j queue.Job) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Reporter receives the final outcome of every job.
type Reporter interface {
	Saved(ctx context.Context, j queue.Job)
	SaveFailed(ctx context.Context, j queue.Job, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker, abandoning a retry that is waiting.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	sender    Sender
	reporter  Reporter
	name      string
	retries   int
	backoff   time.Duration
	retryable func(error) bool
	onDone    func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, sender Sender, reporter Reporter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		sender:    sender,
		reporter:  reporter,
		name:      "worker",
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		retryable: func(error) bool { return false },
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
			if w.onDone != nil {
				w.onDone()
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// process sends j, retrying retryable errors with exponential backoff, and
// reports the final outcome exactly once.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value over the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	delay := w.backoff
	for {
		j.Attempt++
		sendStart := time.Now()
		err := w.sender.Send(ctx, j)
		metrics.RecordCellSaveLatency(float64(time.Since(sendStart).Milliseconds()))
		if err == nil {
			w.reporter.Saved(ctx, j)
			return
		}

		if !w.retryable(err) || j.Attempt > w.retries {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "save_failed")
			w.logger.Warn(ctx, "cell save failed",
				logger.String("request_id", j.RequestID),
				logger.String("entity", j.Edit.Entity),
				logger.String("field", string(j.Edit.Field)),
				logger.Int("attempt", j.Attempt),
				logger.Error(err),
			)
			w.reporter.SaveFailed(ctx, j, err)
			return
		}

		metrics.RecordCellSaveRetry()
		w.logger.Debug(ctx, "retrying cell save",
			logger.String("request_id", j.RequestID),
			logger.Int("attempt", j.Attempt),
			logger.Duration("backoff", delay),
		)
		if !w.wait(ctx, delay) {
			w.reporter.SaveFailed(ctx, j, err)
			return
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func (w *InMemoryWorker) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.shutdown:
		return false
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processedCount    atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. opts apply to every worker;
// each gets a numbered name.
func NewPool(workerCount int, q Queue, sender Sender, reporter Reporter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts,
			WithName("worker-"+strconv.Itoa(i)),
			withOnDone(p.RecordProcessedMessage),
		)
		p.workers[i] = NewInMemoryWorker(q, sender, reporter, workerOpts...)
	}
	probe := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger.Named("worker-pool")

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(p.processedCount.Swap(0)) / elapsed)
	}
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed job count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

// Shutdown closes the queue and lets the workers drain it. Workers still
// busy when ctx (capped at poolShutdownTimeout) ends are stopped, and a
// retry they were waiting on is reported as failed.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	defer p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.stop()
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
