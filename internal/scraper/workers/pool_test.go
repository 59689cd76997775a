package workers

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arenda-utils/internal/config"
	"arenda-utils/internal/scraper"
	"arenda-utils/pkg/models"
)

const workerMarkup = `<html><body>
<div data-marker="item">
	<a data-marker="item-title" href="/item/w_1" title="1-к. квартира, 30 м²"></a>
	<p data-marker="item-price">30 000 ₽</p>
</div>
</body></html>`

type staticFetcher struct {
	markup  string
	fetches int64
}

func (f *staticFetcher) Fetch(ctx context.Context, target string, params url.Values) (string, error) {
	atomic.AddInt64(&f.fetches, 1)
	return f.markup, nil
}

func (f *staticFetcher) Cleanup()        {}
func (f *staticFetcher) IsHealthy() bool { return true }

type staticFactory struct {
	mu         sync.Mutex
	fetcher    scraper.Fetcher
	created    int
	lastEngine string
}

func (f *staticFactory) CreateFetcher(engine string) (scraper.Fetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.lastEngine = engine
	return f.fetcher, nil
}

func (f *staticFactory) GetSupportedEngines() []string {
	return []string{"http", "browser", "auto"}
}

type memorySaver struct {
	mu      sync.Mutex
	records []models.ListingRecord
}

func (m *memorySaver) Upsert(ctx context.Context, rec models.ListingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySaver) all() []models.ListingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ListingRecord(nil), m.records...)
}

func poolConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scraper.BaseURL = "https://x.test"
	cfg.Workers.PoolSize = 2
	cfg.Workers.QueueSize = 8
	cfg.Workers.RateLimit = 6000
	cfg.Workers.Timeout = 10 * time.Second
	return cfg
}

func startPool(t *testing.T, cfg *config.Config, factory *staticFactory, saver *memorySaver) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(cfg, factory, saver, nil)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		pool.Stop()
		pool.rateLimiter.Stop()
	})
	return pool
}

func TestPool_RunsJobEndToEnd(t *testing.T) {
	factory := &staticFactory{fetcher: &staticFetcher{markup: workerMarkup}}
	saver := &memorySaver{}
	pool := startPool(t, poolConfig(), factory, saver)

	result, err := pool.SubmitRun(context.Background(), "https://x.test/catalog", "")
	if err != nil {
		t.Fatalf("SubmitRun: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("run error: %v", result.Error)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}

	records := saver.all()
	if len(records) != 1 || records[0].URL != "https://x.test/item/w_1" {
		t.Errorf("saved records = %v", records)
	}

	factory.mu.Lock()
	engine := factory.lastEngine
	factory.mu.Unlock()
	if engine != "auto" {
		t.Errorf("engine = %q, want the auto default", engine)
	}

	stats := pool.GetStats()
	if stats.RunsProcessed != 1 || stats.RunsSuccessful != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ListingsSaved != 1 {
		t.Errorf("ListingsSaved = %d, want 1", stats.ListingsSaved)
	}
}

func TestPool_FileRunNeverFetches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(workerMarkup), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fetcher := &staticFetcher{markup: workerMarkup}
	factory := &staticFactory{fetcher: fetcher}
	saver := &memorySaver{}
	pool := startPool(t, poolConfig(), factory, saver)

	result, err := pool.SubmitFileRun(context.Background(), path)
	if err != nil {
		t.Fatalf("SubmitFileRun: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("run error: %v", result.Error)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}
	if n := atomic.LoadInt64(&fetcher.fetches); n != 0 {
		t.Errorf("fetcher called %d times on a file run, want 0", n)
	}

	records := saver.all()
	if len(records) != 1 || records[0].URL != "https://x.test/item/w_1" {
		t.Errorf("file run should resolve against the configured base, got %v", records)
	}
}

func TestPool_ConcurrentRunsAllComplete(t *testing.T) {
	factory := &staticFactory{fetcher: &staticFetcher{markup: workerMarkup}}
	saver := &memorySaver{}
	pool := startPool(t, poolConfig(), factory, saver)

	const runs = 4
	var wg sync.WaitGroup
	errs := make(chan error, runs)

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := pool.SubmitRun(context.Background(), "https://x.test/catalog", "http")
			if err != nil {
				errs <- err
				return
			}
			errs <- result.Error
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("run failed: %v", err)
		}
	}

	stats := pool.GetStats()
	if stats.RunsProcessed != runs {
		t.Errorf("RunsProcessed = %d, want %d", stats.RunsProcessed, runs)
	}
	if stats.RunsSuccessful != runs {
		t.Errorf("RunsSuccessful = %d, want %d", stats.RunsSuccessful, runs)
	}
}

func TestPool_SubmitBeforeStartFails(t *testing.T) {
	pool := NewWorkerPool(poolConfig(), &staticFactory{fetcher: &staticFetcher{}}, &memorySaver{}, nil)
	defer pool.rateLimiter.Stop()

	if _, err := pool.SubmitRun(context.Background(), "https://x.test/catalog", ""); err == nil {
		t.Fatal("expected an error before the pool is started")
	}
}

func TestPool_RejectsWhenRateBudgetExhausted(t *testing.T) {
	cfg := poolConfig()
	cfg.Workers.RateLimit = 1 // one request per minute, burst of 5

	factory := &staticFactory{fetcher: &staticFetcher{markup: workerMarkup}}
	pool := startPool(t, cfg, factory, &memorySaver{})

	for i := 0; i < 5; i++ {
		if _, err := pool.SubmitRun(context.Background(), "https://x.test/catalog", ""); err != nil {
			t.Fatalf("run %d rejected within budget: %v", i+1, err)
		}
	}

	if _, err := pool.SubmitRun(context.Background(), "https://x.test/catalog", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for the sixth immediate run, got %v", err)
	}
}
