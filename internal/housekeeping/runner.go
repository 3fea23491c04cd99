// Package housekeeping runs periodic retention jobs on a small worker pool.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linkup/backend/internal/logging"
)

// Job removes stale data and reports how many rows it touched.
type Job func(ctx context.Context) (int64, error)

// RunnerConfig controls the concurrency characteristics of the runner.
type RunnerConfig struct {
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
}

// Runner executes registered jobs on a ticker and on demand.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	jobs map[string]Job

	queue   chan string
	sendMu  sync.RWMutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	tickers sync.WaitGroup
	once    sync.Once
}

// ErrRunnerClosed is returned when work is submitted after Shutdown.
var ErrRunnerClosed = errors.New("housekeeping runner closed")

// ErrUnknownJob is returned for names that were never registered.
var ErrUnknownJob = errors.New("unknown housekeeping job")

// NewRunner starts the worker pool.
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		logger:  logger,
		timeout: cfg.JobTimeout,
		jobs:    make(map[string]Job),
		queue:   make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	r.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}

	return r
}

// Register makes job available to Enqueue and RunOnce without scheduling it.
func (r *Runner) Register(name string, job Job) {
	r.mu.Lock()
	r.jobs[name] = job
	r.mu.Unlock()
}

// Schedule registers job and enqueues it every interval until Shutdown.
func (r *Runner) Schedule(name string, interval time.Duration, job Job) {
	r.Register(name, job)
	if interval <= 0 {
		return
	}

	r.tickers.Add(1)
	go func() {
		defer r.tickers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if err := r.Enqueue(r.ctx, name); err != nil && !errors.Is(err, ErrRunnerClosed) && !errors.Is(err, context.Canceled) {
					r.logger.Warn("housekeeping job not queued", "job", name, "error", err)
				}
			}
		}
	}()
}

// Enqueue schedules a single run of the named job on the worker pool.
func (r *Runner) Enqueue(ctx context.Context, name string) error {
	if _, ok := r.lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrRunnerClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrRunnerClosed
	case r.queue <- name:
		return nil
	}
}

// RunOnce executes every registered job synchronously in name order and returns the rows
// each one touched. Failures do not stop later jobs.
func (r *Runner) RunOnce(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]int64, len(names))
	var errs []error
	for _, name := range names {
		job, _ := r.lookup(name)
		n, err := r.run(ctx, name, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		results[name] = n
	}

	return results, errors.Join(errs...)
}

// Shutdown stops the tickers and waits for queued jobs to drain.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		r.cancel()
		r.tickers.Wait()
		r.sendMu.Lock()
		r.closed = true
		close(r.queue)
		r.sendMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *Runner) lookup(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	return job, ok
}

func (r *Runner) worker() {
	defer r.workers.Done()

	for name := range r.queue {
		job, ok := r.lookup(name)
		if !ok {
			continue
		}
		// Queued runs still complete after Shutdown; they get their own deadline.
		_, _ = r.run(context.Background(), name, job)
	}
}

func (r *Runner) run(ctx context.Context, name string, job Job) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx = logging.WithLogger(ctx, r.logger.With("job", name))
	ctx, span := logging.StartSpan(ctx, "housekeeping."+name)
	defer span.End()

	n, err := job(ctx)
	if err != nil {
		span.Fail(err)
		return 0, err
	}
	logging.FromContext(ctx).Info("housekeeping job completed", "rows", n)
	return n, nil
}
