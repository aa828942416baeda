// Package runner executes submitted jobs on a bounded in-process worker
// pool. It is the queue between the submission surface and the processing
// pipeline: submission enqueues a task, workers drain the queue and drive
// the job service.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/observability/statsd"
	"github.com/medscribe/medscribe-go/internal/service"
)

// Task is one unit of queued work. The fields used depend on the job type:
// audio jobs carry AudioPath, generation-only jobs carry Transcript and
// Language.
type Task struct {
	JobID      string
	Type       model.JobType
	AudioPath  string
	Transcript string
	Language   string
}

// HandlerFunc processes one task; an error marks the job failed.
type HandlerFunc func(ctx context.Context, task Task) error

const (
	defaultConcurrency = 2
	defaultQueueSize   = 64
)

// Options configures the runner.
type Options struct {
	Jobs *service.JobService // Required: executes the queued work

	Concurrency int // max tasks in flight; defaults to 2
	QueueSize   int // pending task buffer; defaults to 64

	Metrics *statsd.Client // Optional: metrics sink
	Logger  *slog.Logger   // Optional: structured logger
}

// Runner drains queued tasks with at most Concurrency in flight.
type Runner struct {
	jobs     *service.JobService
	queue    chan Task
	sem      *semaphore.Weighted
	workers  int64
	handlers map[model.JobType]HandlerFunc
	metrics  *statsd.Client
	logger   *slog.Logger
}

// NewRunner constructs a runner wired to the job service's execution paths.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("Jobs is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Runner{
		jobs:     opts.Jobs,
		queue:    make(chan Task, opts.QueueSize),
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		workers:  int64(opts.Concurrency),
		handlers: make(map[model.JobType]HandlerFunc),
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "job_runner"),
	}
	r.handlers[model.JobTypeFullPipeline] = func(ctx context.Context, t Task) error {
		return r.jobs.RunProcessJob(ctx, t.JobID, t.AudioPath)
	}
	r.handlers[model.JobTypeTranscribeOnly] = func(ctx context.Context, t Task) error {
		return r.jobs.RunTranscribeJob(ctx, t.JobID, t.AudioPath)
	}
	r.handlers[model.JobTypeGenerateNoteOnly] = func(ctx context.Context, t Task) error {
		return r.jobs.RunGenerateJob(ctx, t.JobID, t.Transcript, t.Language)
	}
	return r, nil
}

// MustNewRunner constructs a runner and panics on error.
func MustNewRunner(opts Options) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create runner: %v", err))
	}
	return r
}

// Enqueue places a task on the queue without blocking. A full queue is an
// immediate error so the submitter can surface backpressure instead of
// hanging.
func (r *Runner) Enqueue(task Task) error {
	select {
	case r.queue <- task:
		r.metrics.Count("runner.enqueued", 1, map[string]string{"job_type": string(task.Type)})
		r.logger.Debug("task enqueued", "job_id", task.JobID, "job_type", task.Type)
		return nil
	default:
		return apperrors.Internal("job queue is full").
			WithDetail("job_id", task.JobID).
			WithDetail("queue_size", cap(r.queue))
	}
}

// Run drains the queue until the context is cancelled, then waits for
// in-flight tasks to finish before returning the context's error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting job runner", "concurrency", r.workers, "queue_size", cap(r.queue))

	for {
		select {
		case <-ctx.Done():
			return r.drain(ctx)
		case task := <-r.queue:
			if err := r.sem.Acquire(ctx, 1); err != nil {
				// Cancelled while waiting for a slot; the task stays
				// unexecuted and its record eventually expires as pending.
				r.logger.Warn("runner stopping with task unprocessed", "job_id", task.JobID)
				return r.drain(ctx)
			}
			go func(task Task) {
				defer r.sem.Release(1)
				r.process(ctx, task)
			}(task)
		}
	}
}

// drain waits for every in-flight task by acquiring the pool's full weight.
func (r *Runner) drain(ctx context.Context) error {
	if err := r.sem.Acquire(context.Background(), r.workers); err != nil {
		return err
	}
	r.sem.Release(r.workers)
	r.logger.Info("job runner stopped")
	return ctx.Err()
}

func (r *Runner) process(ctx context.Context, task Task) {
	start := time.Now()

	handler, ok := r.handlers[task.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", task.Type)
		if ferr := r.jobs.Fail(ctx, task.JobID, apperrors.Internalf("no handler for job type %s", task.Type)); ferr != nil {
			r.logger.Error("fail job error", "job_id", task.JobID, "error", ferr)
		}
		r.emit(task, "error", start)
		r.logger.Error("task dispatch failed", "job_id", task.JobID, "error", err)
		return
	}

	if err := handler(ctx, task); err != nil {
		// The job service already recorded the failure on the job record.
		r.emit(task, "error", start)
		r.logger.Error("task failed", "job_id", task.JobID, "job_type", task.Type, "error", err)
		return
	}

	r.emit(task, "success", start)
	r.logger.Info("task completed",
		"job_id", task.JobID, "job_type", task.Type,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

func (r *Runner) emit(task Task, result string, start time.Time) {
	tags := map[string]string{"job_type": string(task.Type), "result": result}
	r.metrics.Count("runner.processed", 1, tags)
	r.metrics.Timing("runner.task", time.Since(start), tags)
}
