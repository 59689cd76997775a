package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/extract"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/reconcile"
	"arenda-utils/internal/scraper"
	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"
)

// Saver is the persistence surface a run needs.
type Saver interface {
	Upsert(ctx context.Context, rec models.ListingRecord) error
}

// Runner drives one scrape end to end: fetch, extract, reconcile, save.
type Runner struct {
	config  *config.Config
	fetcher scraper.Fetcher
	saver   Saver
	sink    artifacts.Sink
	logger  logging.Logger
}

// NewRunner creates a runner. A nil sink disables artifact capture.
func NewRunner(cfg *config.Config, fetcher scraper.Fetcher, saver Saver, sink artifacts.Sink) *Runner {
	if sink == nil {
		sink = artifacts.NoopSink{}
	}
	return &Runner{
		config:  cfg,
		fetcher: fetcher,
		saver:   saver,
		sink:    sink,
		logger:  logging.GetGlobalLogger().WithField("component", "runner"),
	}
}

// RunOnce fetches the target catalog page and saves every listing it yields.
// It returns the number of records written; one record failing to save never
// blocks the rest. An empty targetURL falls back to the configured target.
func (r *Runner) RunOnce(ctx context.Context, targetURL string) (int, error) {
	if targetURL == "" {
		targetURL = r.config.Scraper.TargetURL
	}
	if targetURL == "" {
		return 0, fmt.Errorf("no target URL configured")
	}

	runID := utils.GenerateRequestID()
	r.logger.Info("Starting scrape run", map[string]interface{}{
		"run_id": runID,
		"url":    targetURL,
	})

	markup, err := r.fetcher.Fetch(ctx, targetURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch failed for %s: %w", targetURL, err)
	}
	artifacts.TryPut(ctx, r.sink, runID, "markup", []byte(markup))

	// Relative hrefs on a live page resolve against the page's own URL
	return r.process(ctx, runID, markup, targetURL)
}

// RunOnFile extracts and saves listings from a page snapshot on disk,
// resolving relative hrefs against the configured base URL.
func (r *Runner) RunOnFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	runID := utils.GenerateRequestID()
	r.logger.Info("Starting file run", map[string]interface{}{
		"run_id": runID,
		"path":   path,
	})

	return r.process(ctx, runID, string(data), r.config.Scraper.BaseURL)
}

func (r *Runner) process(ctx context.Context, runID, markup, baseURL string) (int, error) {
	candidates := extract.NewPipeline(baseURL).ExtractAll(markup)
	records := reconcile.Reconcile(candidates)

	if payload, err := json.Marshal(records); err == nil {
		artifacts.TryPut(ctx, r.sink, runID, "records", payload)
	}

	saved, err := r.saveAll(ctx, records)

	r.logger.Info("Scrape run finished", map[string]interface{}{
		"run_id":     runID,
		"candidates": len(candidates),
		"records":    len(records),
		"saved":      saved,
	})

	return saved, err
}

// saveAll writes each record on its own so a bad row cannot take down the
// batch. The first error is reported after the full pass.
func (r *Runner) saveAll(ctx context.Context, records []models.ListingRecord) (int, error) {
	var saved, failed int
	var firstErr error

	for _, rec := range records {
		if err := r.saver.Upsert(ctx, rec); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Warn("Failed to save listing", map[string]interface{}{
				"url":   rec.URL,
				"error": err.Error(),
			})
			continue
		}
		saved++
	}

	if firstErr != nil {
		return saved, fmt.Errorf("failed to save %d of %d listings: %w", failed, len(records), firstErr)
	}
	return saved, nil
}
