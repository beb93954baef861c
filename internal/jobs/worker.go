package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sjperalta/lendcore-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// defaultDrainTimeout bounds how long Shutdown waits for in-flight jobs
// before cancelling their context
const defaultDrainTimeout = 30 * time.Second

// Worker manages background jobs and scheduled tasks
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	stop          chan struct{}
	drainTimeout  time.Duration
	wg            sync.WaitGroup
	queue         chan Job
	asyncSem      chan struct{}
	maxConcurrent int
	closed        bool
	closeMu       sync.RWMutex
	stats         WorkerStats
	statsMu       sync.RWMutex
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int               `json:"active_jobs"`
	CompletedJobs int64             `json:"completed_jobs"`
	FailedJobs    int64             `json:"failed_jobs"`
	QueueLength   int               `json:"queue_length"`
	MaxConcurrent int               `json:"max_concurrent"`
	Scheduled     map[string]JobRun `json:"scheduled"`
}

// JobRun describes the last execution of a scheduled job
type JobRun struct {
	Interval   time.Duration `json:"interval"`
	LastRunAt  *time.Time    `json:"last_run_at"`
	LastError  string        `json:"last_error,omitempty"`
	LastTookMs int64         `json:"last_took_ms"`
	Runs       int64         `json:"runs"`
}

// NewWorker creates a worker with N concurrent processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	// Allow 2x workers for async jobs
	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		stop:          make(chan struct{}),
		drainTimeout:  defaultDrainTimeout,
		queue:         make(chan Job, 100),
		asyncSem:      make(chan struct{}, asyncLimit),
		maxConcurrent: asyncLimit,
		stats:         WorkerStats{Scheduled: make(map[string]JobRun)},
	}

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to be processed by the worker pool. When the queue is
// full the job runs on the caller's goroutine.
func (w *Worker) Enqueue(job Job) {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		logger.Warn("Worker stopped, dropping job")
		return
	}

	select {
	case w.queue <- job:
	default:
		logger.Warn("Worker queue full, running job synchronously")
		w.run("sync", job)
	}
}

// EnqueueAsync runs a job in a new goroutine (fire-and-forget), bounded by semaphore
func (w *Worker) EnqueueAsync(job Job) {
	w.closeMu.RLock()
	if w.closed {
		w.closeMu.RUnlock()
		logger.Warn("Worker stopped, dropping async job")
		return
	}
	w.wg.Add(1)
	w.closeMu.RUnlock()

	go func() {
		defer w.wg.Done()

		w.asyncSem <- struct{}{}
		defer func() { <-w.asyncSem }()

		w.run("async", job)
	}()
}

// process handles jobs from the queue until it is closed and drained
func (w *Worker) process(workerID int) {
	defer w.wg.Done()
	for job := range w.queue {
		w.run("queue", job, "worker_id", workerID)
	}
}

// run executes job with panic recovery and stats tracking
func (w *Worker) run(kind string, job Job, attrs ...any) (err error) {
	w.trackJobStart()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panic", append(attrs, "kind", kind, "panic", r)...)
			w.trackJobFailure()
		}
		w.trackJobEnd()
	}()

	if err = job(w.ctx); err != nil {
		logger.Error("Job failed", append(attrs, "kind", kind, "error", err)...)
		w.trackJobFailure()
		return err
	}

	logger.Debug("Job completed", append(attrs, "kind", kind, "took", time.Since(start))...)
	return nil
}

// ScheduleEvery runs a job at fixed intervals. The first run happens after
// the interval.
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, false)
}

// ScheduleEveryImmediate runs a job once at startup, then at fixed intervals.
// Use this for maintenance that should not wait a full interval after a
// restart.
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, true)
}

func (w *Worker) schedule(name string, interval time.Duration, job Job, immediate bool) {
	w.statsMu.Lock()
	w.stats.Scheduled[name] = JobRun{Interval: interval}
	w.statsMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.runScheduledJob(name, job)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.runScheduledJob(name, job)
			}
		}
	}()
}

func (w *Worker) runScheduledJob(name string, job Job) {
	start := time.Now()
	err := w.run("scheduled", job, "job", name)

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	run := w.stats.Scheduled[name]
	run.LastRunAt = &start
	run.LastTookMs = time.Since(start).Milliseconds()
	run.Runs++
	run.LastError = ""
	if err != nil {
		run.LastError = err.Error()
	}
	w.stats.Scheduled[name] = run
}

// Shutdown stops accepting jobs and waits for queued and running ones to
// finish. Jobs still running after the drain timeout see their context
// cancelled.
func (w *Worker) Shutdown() {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	close(w.queue)
	w.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(w.drainTimeout):
		logger.Warn("Worker drain timed out, cancelling running jobs", "timeout", w.drainTimeout.String())
		w.cancel()
		<-drained
	}
	w.cancel()
}

// Context returns the worker's context for checking cancellation
func (w *Worker) Context() context.Context {
	return w.ctx
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	stats.MaxConcurrent = w.maxConcurrent
	stats.Scheduled = make(map[string]JobRun, len(w.stats.Scheduled))
	for k, v := range w.stats.Scheduled {
		stats.Scheduled[k] = v
	}
	return stats
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

// trackJobEnd counts every finished job. FailedJobs is a subset of
// CompletedJobs.
func (w *Worker) trackJobEnd() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) trackJobFailure() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FailedJobs++
}
