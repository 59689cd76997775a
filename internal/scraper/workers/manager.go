package workers

import (
	"context"
	"fmt"
	"sync"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/runner"
	"arenda-utils/internal/scraper"
)

// PoolManager manages the worker pool lifecycle
type PoolManager struct {
	config      *config.Config
	pool        *WorkerPool
	factory     scraper.FetcherFactory
	saver       runner.Saver
	sink        artifacts.Sink
	logger      logging.Logger
	mu          sync.RWMutex
	initialized bool
}

// NewPoolManager creates a new worker pool manager
func NewPoolManager(cfg *config.Config, factory scraper.FetcherFactory, saver runner.Saver, sink artifacts.Sink) *PoolManager {
	return &PoolManager{
		config:  cfg,
		factory: factory,
		saver:   saver,
		sink:    sink,
		logger:  logging.GetGlobalLogger().WithField("component", "pool_manager"),
	}
}

// Initialize initializes the worker pool
func (pm *PoolManager) Initialize() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.initialized {
		return fmt.Errorf("worker pool already initialized")
	}

	pm.pool = NewWorkerPool(pm.config, pm.factory, pm.saver, pm.sink)

	if err := pm.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	pm.initialized = true
	pm.logger.Info("Worker pool initialized")
	return nil
}

// Shutdown gracefully shuts down the worker pool
func (pm *PoolManager) Shutdown() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.initialized || pm.pool == nil {
		return nil
	}

	pm.logger.Info("Shutting down worker pool")

	if err := pm.pool.Stop(); err != nil {
		pm.logger.Error("Error stopping worker pool", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	pm.pool.rateLimiter.Stop()

	pm.initialized = false
	pm.logger.Info("Worker pool shutdown complete")
	return nil
}

// SubmitRun submits a catalog scrape to the worker pool.
func (pm *PoolManager) SubmitRun(ctx context.Context, targetURL, engine string) (*RunResult, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.pool == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	return pm.pool.SubmitRun(ctx, targetURL, engine)
}

// SubmitFileRun submits extraction of a saved page to the worker pool.
func (pm *PoolManager) SubmitFileRun(ctx context.Context, path string) (*RunResult, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.pool == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	return pm.pool.SubmitFileRun(ctx, path)
}

// GetStats returns worker pool statistics
func (pm *PoolManager) GetStats() (*PoolManagerStats, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.pool == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	poolStats := pm.pool.GetStats()

	return &PoolManagerStats{
		Initialized:      pm.initialized,
		PoolStats:        &poolStats,
		RateLimiterStats: pm.pool.rateLimiter.GetAllStats(),
		WorkerCount:      len(pm.pool.workers),
		QueueCapacity:    pm.config.Workers.QueueSize,
	}, nil
}

// IsHealthy returns true if the worker pool is healthy
func (pm *PoolManager) IsHealthy() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.initialized && pm.pool != nil && pm.pool.IsRunning()
}

// GetDomainStats returns rate limiter statistics for a specific domain.
func (pm *PoolManager) GetDomainStats(domain string) (map[string]interface{}, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.pool == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	return pm.pool.rateLimiter.GetDomainStats(domain), nil
}

// PoolManagerStats aggregates pool and rate limiter statistics.
type PoolManagerStats struct {
	Initialized      bool                              `json:"initialized"`
	PoolStats        *PoolStatsData                    `json:"pool_stats"`
	RateLimiterStats map[string]map[string]interface{} `json:"rate_limiter_stats"`
	WorkerCount      int                               `json:"worker_count"`
	QueueCapacity    int                               `json:"queue_capacity"`
}
