package runner

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"arenda-utils/internal/config"
	"arenda-utils/pkg/models"
)

const catalogMarkup = `<html><body>
<div data-marker="item">
	<a data-marker="item-title" href="/item/kvartira_1" title="1-к. квартира, 30 м²"></a>
	<p data-marker="item-price">30 000 ₽</p>
</div>
<div data-marker="item">
	<a data-marker="item-title" href="/item/kvartira_2" title="2-к. квартира, 45 м²"></a>
	<p data-marker="item-price">45 000 ₽</p>
</div>
<div data-marker="item">
	<a data-marker="item-title" href="/item/kvartira_3" title="3-к. квартира, 70 м²"></a>
	<p data-marker="item-price">70 000 ₽</p>
</div>
</body></html>`

type fakeFetcher struct {
	markup     string
	err        error
	calls      int
	lastTarget string
}

func (f *fakeFetcher) Fetch(ctx context.Context, target string, params url.Values) (string, error) {
	f.calls++
	f.lastTarget = target
	if f.err != nil {
		return "", f.err
	}
	return f.markup, nil
}

func (f *fakeFetcher) Cleanup()        {}
func (f *fakeFetcher) IsHealthy() bool { return true }

type fakeSaver struct {
	saved  []models.ListingRecord
	failOn map[string]error
}

func (f *fakeSaver) Upsert(ctx context.Context, rec models.ListingRecord) error {
	if err, ok := f.failOn[rec.URL]; ok {
		return err
	}
	f.saved = append(f.saved, rec)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scraper.BaseURL = "https://x.test"
	return cfg
}

func TestRunOnce_SavesExtractedListings(t *testing.T) {
	fetcher := &fakeFetcher{markup: catalogMarkup}
	saver := &fakeSaver{}
	r := NewRunner(testConfig(), fetcher, saver, nil)

	saved, err := r.RunOnce(context.Background(), "https://x.test/moskva/kvartiry/sdam")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if saved != 3 {
		t.Fatalf("saved = %d, want 3", saved)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls)
	}
	if saver.saved[0].URL != "https://x.test/item/kvartira_1" {
		t.Errorf("first saved URL = %q, relative href should resolve against the page URL", saver.saved[0].URL)
	}
	if saver.saved[0].Title != "1-к. квартира, 30 м²" {
		t.Errorf("first saved Title = %q", saver.saved[0].Title)
	}
	if saver.saved[0].PriceValue == nil || *saver.saved[0].PriceValue != 30000 {
		t.Errorf("first saved PriceValue = %v, want 30000", saver.saved[0].PriceValue)
	}
}

func TestRunOnce_EmptyTargetFallsBackToConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Scraper.TargetURL = "https://x.test/configured"
	fetcher := &fakeFetcher{markup: "<html></html>"}
	r := NewRunner(cfg, fetcher, &fakeSaver{}, nil)

	if _, err := r.RunOnce(context.Background(), ""); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if fetcher.lastTarget != "https://x.test/configured" {
		t.Errorf("fetched %q, want the configured target", fetcher.lastTarget)
	}
}

func TestRunOnce_NoTargetAnywhereErrors(t *testing.T) {
	fetcher := &fakeFetcher{markup: "<html></html>"}
	r := NewRunner(testConfig(), fetcher, &fakeSaver{}, nil)

	if _, err := r.RunOnce(context.Background(), ""); err == nil {
		t.Fatal("expected an error when no target URL is set anywhere")
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times, want 0", fetcher.calls)
	}
}

func TestRunOnce_FetchErrorPropagates(t *testing.T) {
	saver := &fakeSaver{}
	r := NewRunner(testConfig(), &fakeFetcher{err: errors.New("blocked")}, saver, nil)

	saved, err := r.RunOnce(context.Background(), "https://x.test/catalog")
	if err == nil {
		t.Fatal("expected the fetch error to surface")
	}
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
	if len(saver.saved) != 0 {
		t.Errorf("saver received %d records, want 0", len(saver.saved))
	}
}

func TestRunOnce_OneFailedSaveDoesNotBlockTheRest(t *testing.T) {
	saver := &fakeSaver{failOn: map[string]error{
		"https://x.test/item/kvartira_2": errors.New("disk full"),
	}}
	r := NewRunner(testConfig(), &fakeFetcher{markup: catalogMarkup}, saver, nil)

	saved, err := r.RunOnce(context.Background(), "https://x.test/catalog")
	if err == nil {
		t.Fatal("expected the persistence error to propagate")
	}
	if saved != 2 {
		t.Errorf("saved = %d, want the two unaffected records", saved)
	}
	for _, rec := range saver.saved {
		if rec.URL == "https://x.test/item/kvartira_2" {
			t.Errorf("failed record should not appear among saved ones")
		}
	}
}

func TestRunOnFile_ResolvesAgainstConfiguredBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.html")
	if err := os.WriteFile(path, []byte(catalogMarkup), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	saver := &fakeSaver{}
	r := NewRunner(testConfig(), &fakeFetcher{}, saver, nil)

	saved, err := r.RunOnFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RunOnFile: %v", err)
	}
	if saved != 3 {
		t.Fatalf("saved = %d, want 3", saved)
	}
	if saver.saved[0].URL != "https://x.test/item/kvartira_1" {
		t.Errorf("saved URL = %q, want resolution against the configured base", saver.saved[0].URL)
	}
}

func TestRunOnFile_MissingFileErrors(t *testing.T) {
	r := NewRunner(testConfig(), &fakeFetcher{}, &fakeSaver{}, nil)
	if _, err := r.RunOnFile(context.Background(), filepath.Join(t.TempDir(), "absent.html")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
