package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/scraper"
	"arenda-utils/internal/scraper/workers"
	"arenda-utils/pkg/models"

	"github.com/labstack/echo/v4"
)

const runCatalogMarkup = `<!DOCTYPE html>
<html><body>
<div data-marker="item">
  <a data-marker="item-title" href="/item/r_1" title="1-к. квартира, 35 м²">1-к. квартира, 35 м²</a>
  <p data-marker="item-price">30 000 ₽ в месяц</p>
</div>
</body></html>`

type stubFetcher struct {
	markup string
}

func (f *stubFetcher) Fetch(ctx context.Context, target string, params url.Values) (string, error) {
	return f.markup, nil
}

func (f *stubFetcher) Cleanup() {}

func (f *stubFetcher) IsHealthy() bool { return true }

type stubFactory struct {
	mu         sync.Mutex
	fetcher    scraper.Fetcher
	lastEngine string
}

func (f *stubFactory) CreateFetcher(engine string) (scraper.Fetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEngine = engine
	return f.fetcher, nil
}

func (f *stubFactory) GetSupportedEngines() []string {
	return []string{"http", "browser", "auto"}
}

type recordingSaver struct {
	mu      sync.Mutex
	records []models.ListingRecord
}

func (s *recordingSaver) Upsert(ctx context.Context, rec models.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSaver) all() []models.ListingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ListingRecord, len(s.records))
	copy(out, s.records)
	return out
}

func newRunPoolManager(t *testing.T) (*workers.PoolManager, *recordingSaver) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Scraper.BaseURL = "https://x.test"
	cfg.Workers.PoolSize = 1
	cfg.Workers.QueueSize = 4
	cfg.Workers.RateLimit = 6000
	cfg.Workers.Timeout = 10 * time.Second

	factory := &stubFactory{fetcher: &stubFetcher{markup: runCatalogMarkup}}
	saver := &recordingSaver{}

	pm := workers.NewPoolManager(cfg, factory, saver, artifacts.NoopSink{})
	if err := pm.Initialize(); err != nil {
		t.Fatalf("failed to initialize pool manager: %v", err)
	}
	t.Cleanup(func() {
		if err := pm.Shutdown(); err != nil {
			t.Errorf("failed to shut down pool manager: %v", err)
		}
	})

	return pm, saver
}

func postJSON(t *testing.T, handler echo.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestRunHandler_SavesListings(t *testing.T) {
	pm, saver := newRunPoolManager(t)

	rec := postJSON(t, RunHandler(pm), "/api/v1/runs", `{"url":"https://x.test/catalog"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success response")
	}
	if resp.CountSaved != 1 {
		t.Errorf("expected 1 saved listing, got %d", resp.CountSaved)
	}
	if resp.RunID == "" {
		t.Error("expected a run ID")
	}
	if resp.Engine != "auto" {
		t.Errorf("expected engine auto, got %q", resp.Engine)
	}

	saved := saver.all()
	if len(saved) != 1 {
		t.Fatalf("expected 1 record in the saver, got %d", len(saved))
	}
	if saved[0].URL != "https://x.test/item/r_1" {
		t.Errorf("unexpected saved URL %q", saved[0].URL)
	}
}

func TestRunHandler_HonorsEngineOption(t *testing.T) {
	pm, _ := newRunPoolManager(t)

	rec := postJSON(t, RunHandler(pm), "/api/v1/runs", `{"url":"https://x.test/catalog","options":{"engine":"http"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Engine != "http" {
		t.Errorf("expected engine http, got %q", resp.Engine)
	}
}

func TestRunHandler_RejectsUnknownEngine(t *testing.T) {
	pm, saver := newRunPoolManager(t)

	rec := postJSON(t, RunHandler(pm), "/api/v1/runs", `{"url":"https://x.test/catalog","options":{"engine":"warp"}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "validation_failed" {
		t.Errorf("expected validation_failed, got %q", resp.Error)
	}
	if len(saver.all()) != 0 {
		t.Error("nothing should be saved for a rejected request")
	}
}

func TestRunHandler_RejectsMissingURL(t *testing.T) {
	pm, saver := newRunPoolManager(t)

	rec := postJSON(t, RunHandler(pm), "/api/v1/runs", `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "validation_failed" {
		t.Errorf("expected validation_failed, got %q", resp.Error)
	}
	if len(saver.all()) != 0 {
		t.Error("nothing should be saved for a rejected request")
	}
}

func TestRunHandler_RejectsMalformedBody(t *testing.T) {
	pm, _ := newRunPoolManager(t)

	rec := postJSON(t, RunHandler(pm), "/api/v1/runs", `{"url": 12`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "invalid_request" {
		t.Errorf("expected invalid_request, got %q", resp.Error)
	}
}

func TestFileRunHandler_ExtractsFromDump(t *testing.T) {
	pm, saver := newRunPoolManager(t)

	path := filepath.Join(t.TempDir(), "catalog.html")
	if err := os.WriteFile(path, []byte(runCatalogMarkup), 0o644); err != nil {
		t.Fatalf("failed to write dump: %v", err)
	}

	body, err := json.Marshal(models.FileRunRequest{Path: path})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	rec := postJSON(t, FileRunHandler(pm), "/api/v1/runs/file", string(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CountSaved != 1 {
		t.Errorf("expected 1 saved listing, got %d", resp.CountSaved)
	}

	saved := saver.all()
	if len(saved) != 1 {
		t.Fatalf("expected 1 record in the saver, got %d", len(saved))
	}
	if saved[0].URL != "https://x.test/item/r_1" {
		t.Errorf("file run should resolve against the configured base, got %q", saved[0].URL)
	}
}

func TestFileRunHandler_MissingFileIsUnprocessable(t *testing.T) {
	pm, _ := newRunPoolManager(t)

	body := `{"path":"/nonexistent/dump.html"}`
	rec := postJSON(t, FileRunHandler(pm), "/api/v1/runs/file", body)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "file_run_failed" {
		t.Errorf("expected file_run_failed, got %q", resp.Error)
	}
}
