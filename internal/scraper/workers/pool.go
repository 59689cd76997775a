package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/runner"
	"arenda-utils/internal/scraper"
	"arenda-utils/pkg/utils"
)

// ErrRateLimited is returned when the per-domain budget rejects a run.
var ErrRateLimited = errors.New("rate limit exceeded")

// RunResult is what a finished scrape run reports back.
type RunResult struct {
	Saved     int
	Error     error
	RequestID string
	Duration  time.Duration
}

// RunJob is one scrape run queued for a worker. A job either targets a live
// catalog URL or a page snapshot on disk, never both.
type RunJob struct {
	ID         string
	TargetURL  string
	FilePath   string
	Engine     string
	ResultChan chan RunResult
	Context    context.Context
	CreatedAt  time.Time
}

// Worker represents a single worker goroutine
type Worker struct {
	ID       int
	JobChan  chan RunJob
	QuitChan chan bool
	Pool     *WorkerPool
	factory  scraper.FetcherFactory
	logger   logging.Logger
}

// lineageFactory is implemented by factories that can split cookie state into
// per-worker session lineages.
type lineageFactory interface {
	ForLineage(n int) scraper.FetcherFactory
}

// WorkerPool manages multiple worker goroutines and the run queue.
type WorkerPool struct {
	config      *config.Config
	workers     []*Worker
	jobQueue    chan RunJob
	dispatcher  *Dispatcher
	rateLimiter *RateLimiter
	factory     scraper.FetcherFactory
	saver       runner.Saver
	sink        artifacts.Sink
	logger      logging.Logger
	mu          sync.RWMutex
	running     bool
	stats       *PoolStats
}

// PoolStats tracks worker pool counters.
type PoolStats struct {
	mu                  sync.RWMutex
	RunsQueued          int64
	RunsProcessed       int64
	RunsSuccessful      int64
	RunsFailed          int64
	ListingsSaved       int64
	TotalProcessingTime time.Duration
}

// PoolStatsData is the lock-free snapshot the stats endpoints serve.
type PoolStatsData struct {
	RunsQueued            int64         `json:"runs_queued"`
	RunsProcessed         int64         `json:"runs_processed"`
	RunsSuccessful        int64         `json:"runs_successful"`
	RunsFailed            int64         `json:"runs_failed"`
	ListingsSaved         int64         `json:"listings_saved"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// NewWorkerPool creates a new worker pool instance
func NewWorkerPool(cfg *config.Config, factory scraper.FetcherFactory, saver runner.Saver, sink artifacts.Sink) *WorkerPool {
	logger := logging.GetGlobalLogger().WithField("component", "worker_pool")

	pool := &WorkerPool{
		config:      cfg,
		jobQueue:    make(chan RunJob, cfg.Workers.QueueSize),
		rateLimiter: NewRateLimiter(cfg),
		factory:     factory,
		saver:       saver,
		sink:        sink,
		logger:      logger,
		stats:       &PoolStats{},
	}

	pool.workers = make([]*Worker, cfg.Workers.PoolSize)
	for i := 0; i < cfg.Workers.PoolSize; i++ {
		workerFactory := factory
		// Workers keep separate cookie lineages so sessions never mix
		if lf, ok := factory.(lineageFactory); ok {
			workerFactory = lf.ForLineage(i + 1)
		}
		pool.workers[i] = &Worker{
			ID:       i + 1,
			JobChan:  make(chan RunJob),
			QuitChan: make(chan bool, 1),
			Pool:     pool,
			factory:  workerFactory,
			logger:   logger.WithField("worker_id", i+1),
		}
	}

	pool.dispatcher = NewDispatcher(pool.jobQueue, pool.workers)

	logger.Info("Worker pool initialized", map[string]interface{}{
		"pool_size": cfg.Workers.PoolSize,
	})
	return pool
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return fmt.Errorf("worker pool is already running")
	}

	wp.dispatcher.Start()

	for _, worker := range wp.workers {
		go worker.Start()
	}

	wp.running = true
	wp.logger.Info("Worker pool started", map[string]interface{}{
		"workers": len(wp.workers),
	})
	return nil
}

// Stop stops the worker pool gracefully
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return nil
	}

	wp.logger.Info("Stopping worker pool")

	wp.dispatcher.Stop()

	for _, worker := range wp.workers {
		worker.Stop()
	}

	close(wp.jobQueue)

	wp.running = false
	wp.logger.Info("Worker pool stopped")
	return nil
}

// SubmitRun queues a scrape of the target catalog URL and waits for the
// result. An empty targetURL scrapes the configured target; an empty engine
// uses the automatic HTTP-first engine.
func (wp *WorkerPool) SubmitRun(ctx context.Context, targetURL, engine string) (*RunResult, error) {
	target := targetURL
	if target == "" {
		target = wp.config.Scraper.TargetURL
	}

	domain := domainForRateLimit(target)
	if !wp.rateLimiter.Allow(domain) {
		return nil, fmt.Errorf("%w for domain: %s", ErrRateLimited, domain)
	}

	return wp.submit(ctx, RunJob{
		ID:         utils.GenerateRequestID(),
		TargetURL:  targetURL,
		Engine:     engine,
		ResultChan: make(chan RunResult, 1),
		Context:    ctx,
		CreatedAt:  time.Now(),
	})
}

// SubmitFileRun queues extraction of a page snapshot on disk and waits for
// the result. File runs never hit the network, so they bypass rate limiting.
func (wp *WorkerPool) SubmitFileRun(ctx context.Context, path string) (*RunResult, error) {
	return wp.submit(ctx, RunJob{
		ID:         utils.GenerateRequestID(),
		FilePath:   path,
		ResultChan: make(chan RunResult, 1),
		Context:    ctx,
		CreatedAt:  time.Now(),
	})
}

func (wp *WorkerPool) submit(ctx context.Context, job RunJob) (*RunResult, error) {
	if !wp.IsRunning() {
		return nil, fmt.Errorf("worker pool is not running")
	}

	wp.stats.mu.Lock()
	wp.stats.RunsQueued++
	wp.stats.mu.Unlock()

	select {
	case wp.jobQueue <- job:
		wp.logger.Info("Run queued", map[string]interface{}{
			"job_id": job.ID,
			"url":    job.TargetURL,
			"path":   job.FilePath,
		})
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("run queue is full, request timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-job.ResultChan:
		return &result, nil
	case <-time.After(wp.config.Workers.Timeout):
		return nil, fmt.Errorf("run timed out after %v", wp.config.Workers.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsRunning returns true if the worker pool is running
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// GetStats returns a snapshot of the pool counters.
func (wp *WorkerPool) GetStats() PoolStatsData {
	wp.stats.mu.RLock()
	defer wp.stats.mu.RUnlock()

	data := PoolStatsData{
		RunsQueued:     wp.stats.RunsQueued,
		RunsProcessed:  wp.stats.RunsProcessed,
		RunsSuccessful: wp.stats.RunsSuccessful,
		RunsFailed:     wp.stats.RunsFailed,
		ListingsSaved:  wp.stats.ListingsSaved,
	}
	if wp.stats.RunsProcessed > 0 {
		data.AverageProcessingTime = wp.stats.TotalProcessingTime / time.Duration(wp.stats.RunsProcessed)
	}
	return data
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.logger.Debug("Worker started")

	for {
		select {
		case job := <-w.JobChan:
			w.processJob(job)
		case <-w.QuitChan:
			w.logger.Debug("Worker stopping")
			return
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.QuitChan <- true
}

// processJob runs a single job and reports the result back.
func (w *Worker) processJob(job RunJob) {
	start := time.Now()

	w.logger.Debug("Processing run", map[string]interface{}{
		"job_id": job.ID,
		"url":    job.TargetURL,
		"path":   job.FilePath,
	})

	result := w.runJob(job)
	result.Duration = time.Since(start)

	w.Pool.stats.mu.Lock()
	w.Pool.stats.RunsProcessed++
	w.Pool.stats.TotalProcessingTime += result.Duration
	if result.Error != nil {
		w.Pool.stats.RunsFailed++
	} else {
		w.Pool.stats.RunsSuccessful++
		w.Pool.stats.ListingsSaved += int64(result.Saved)
	}
	w.Pool.stats.mu.Unlock()

	select {
	case job.ResultChan <- result:
		w.logger.Info("Run completed", map[string]interface{}{
			"job_id":   job.ID,
			"saved":    result.Saved,
			"duration": result.Duration.String(),
			"success":  result.Error == nil,
		})
	case <-time.After(100 * time.Millisecond):
		// Client gave up waiting
		w.logger.Debug("Result channel timeout", map[string]interface{}{
			"job_id": job.ID,
		})
	}
}

// runJob builds a fetcher for the job's engine and drives one run through it.
// Retry behavior lives inside the fetcher, so a failed run is final here.
func (w *Worker) runJob(job RunJob) RunResult {
	result := RunResult{RequestID: job.ID}

	engine := job.Engine
	if engine == "" {
		engine = "auto"
	}

	fetcher, err := w.factory.CreateFetcher(engine)
	if err != nil {
		result.Error = fmt.Errorf("failed to create fetcher: %w", err)
		return result
	}
	defer fetcher.Cleanup()

	r := runner.NewRunner(w.Pool.config, fetcher, w.Pool.saver, w.Pool.sink)

	if job.FilePath != "" {
		result.Saved, result.Error = r.RunOnFile(job.Context, job.FilePath)
		return result
	}

	result.Saved, result.Error = r.RunOnce(job.Context, job.TargetURL)

	target := job.TargetURL
	if target == "" {
		target = w.Pool.config.Scraper.TargetURL
	}
	domain := domainForRateLimit(target)
	if result.Error != nil {
		w.Pool.rateLimiter.RecordFailure(domain, result.Error)
	} else {
		w.Pool.rateLimiter.RecordSuccess(domain)
	}

	return result
}
