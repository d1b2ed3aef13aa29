// Package worker drains the render queues. Each queue gets its own
// pool of goroutines blocking on Dequeue, so a burst of PDF work never
// starves screenshot throughput.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snapdock/snapdock-api/internal/queue"
	"github.com/snapdock/snapdock-api/internal/service"
)

// Worker processes queued capture jobs.
type Worker struct {
	capture     *service.CaptureService
	queues      *service.Queues
	concurrency int
	grace       time.Duration
	stop        chan struct{}
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	Concurrency   int
	ShutdownGrace time.Duration
}

// New creates a new worker.
func New(capture *service.CaptureService, queues *service.Queues, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		capture:     capture,
		queues:      queues,
		concurrency: cfg.Concurrency,
		grace:       cfg.ShutdownGrace,
		stop:        make(chan struct{}),
		logger:      logger.With("component", "worker"),
	}
}

// Start launches the consumer pools for both queues.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(2)
		go w.consume(ctx, w.queues.Screenshots, i)
		go w.consume(ctx, w.queues.PDFs, i)
	}
}

// Stop signals the consumers and waits for in-flight renders, up to
// the shutdown grace period.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("stopped")
	case <-time.After(w.grace):
		w.logger.Warn("shutdown grace expired with renders in flight")
	}
}

func (w *Worker) consume(ctx context.Context, q *queue.Queue, workerID int) {
	defer w.wg.Done()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-consumeCtx.Done():
		}
	}()

	for {
		task, taskCtx, err := q.Dequeue(consumeCtx)
		if err != nil {
			// Context end or queue close; either way the pool is done.
			return
		}
		w.process(taskCtx, q, task, workerID)
	}
}

func (w *Worker) process(ctx context.Context, q *queue.Queue, task *queue.Task, workerID int) {
	w.logger.Info("processing task", "worker_id", workerID, "queue", q.Name(), "task_id", task.ID)

	var err error
	switch payload := task.Payload.(type) {
	case *service.ScreenshotTask:
		_, err = w.capture.RenderScreenshot(ctx, payload)
	case *service.PDFTask:
		_, err = w.capture.RenderPDF(ctx, payload)
	default:
		w.logger.Error("unknown task payload", "queue", q.Name(), "task_id", task.ID)
		q.Fail(task.ID, "unknown payload type")
		return
	}

	if err != nil {
		// The capture service already recorded the failure on the job
		// row; the queue only tracks scheduling state.
		w.logger.Error("task failed", "queue", q.Name(), "task_id", task.ID, "error", err)
		q.Fail(task.ID, err.Error())
		return
	}

	q.Complete(task.ID)
	w.logger.Info("task completed", "queue", q.Name(), "task_id", task.ID)
}
