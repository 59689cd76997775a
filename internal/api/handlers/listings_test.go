package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"arenda-utils/internal/store"
	"arenda-utils/pkg/models"

	"github.com/labstack/echo/v4"
)

type fakeSource struct {
	records    []models.ListingRecord
	total      int
	listErr    error
	lastLimit  int
	lastOffset int
}

func (f *fakeSource) List(ctx context.Context, limit, offset int) ([]models.ListingRecord, error) {
	f.lastLimit = limit
	f.lastOffset = offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeSource) GetByURL(ctx context.Context, url string) (*models.ListingRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	for i := range f.records {
		if f.records[i].URL == url {
			return &f.records[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSource) Count(ctx context.Context) (int, error) {
	return f.total, nil
}

func getListings(t *testing.T, src ListingSource, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := ListingsHandler(src)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestListingsHandler_ReturnsStoredPage(t *testing.T) {
	src := &fakeSource{
		records: []models.ListingRecord{
			{
				URL:      "https://x.test/item/1",
				Title:    "2-к. квартира, 54 м²",
				PriceRaw: "45 000 ₽ в месяц",
				Images:   []string{"https://img.x.test/1.jpg", "https://img.x.test/2.jpg"},
			},
			{
				URL:   "https://x.test/item/2",
				Title: "Студия, 28 м²",
			},
		},
		total: 42,
	}

	rec := getListings(t, src, "/api/v1/listings")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.ListingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 42 {
		t.Errorf("expected total count 42, got %d", resp.Count)
	}
	if len(resp.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(resp.Listings))
	}
	if resp.Listings[0].FirstImage != "https://img.x.test/1.jpg" {
		t.Errorf("unexpected first image %q", resp.Listings[0].FirstImage)
	}
	if resp.Listings[1].FirstImage != "" {
		t.Errorf("imageless listing should have no first image, got %q", resp.Listings[1].FirstImage)
	}
}

func TestListingsHandler_DefaultPaging(t *testing.T) {
	src := &fakeSource{}

	getListings(t, src, "/api/v1/listings")

	if src.lastLimit != defaultListingLimit {
		t.Errorf("expected default limit %d, got %d", defaultListingLimit, src.lastLimit)
	}
	if src.lastOffset != 0 {
		t.Errorf("expected default offset 0, got %d", src.lastOffset)
	}
}

func TestListingsHandler_PassesLimitAndOffset(t *testing.T) {
	src := &fakeSource{}

	getListings(t, src, "/api/v1/listings?limit=5&offset=10")

	if src.lastLimit != 5 {
		t.Errorf("expected limit 5, got %d", src.lastLimit)
	}
	if src.lastOffset != 10 {
		t.Errorf("expected offset 10, got %d", src.lastOffset)
	}
}

func TestListingsHandler_ClampsOversizedLimit(t *testing.T) {
	src := &fakeSource{}

	getListings(t, src, "/api/v1/listings?limit=5000")

	if src.lastLimit != maxListingLimit {
		t.Errorf("expected limit clamped to %d, got %d", maxListingLimit, src.lastLimit)
	}
}

func TestListingsHandler_RejectsBadParams(t *testing.T) {
	for _, target := range []string{
		"/api/v1/listings?limit=abc",
		"/api/v1/listings?limit=-1",
		"/api/v1/listings?offset=abc",
		"/api/v1/listings?offset=-3",
	} {
		src := &fakeSource{}
		rec := getListings(t, src, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestListingsHandler_SourceFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("database is locked")}

	rec := getListings(t, src, "/api/v1/listings")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "listings_unavailable" {
		t.Errorf("expected listings_unavailable, got %q", resp.Error)
	}
}

func getListingByURL(t *testing.T, src ListingSource, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := ListingByURLHandler(src)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestListingByURLHandler_ReturnsFullRecord(t *testing.T) {
	price := 45000
	src := &fakeSource{
		records: []models.ListingRecord{
			{
				URL:         "https://x.test/item/1",
				Title:       "2-к. квартира, 54 м²",
				PriceRaw:    "45 000 ₽ в месяц",
				PriceValue:  &price,
				Description: "Сдается надолго.",
				Images:      []string{"https://img.x.test/1.jpg"},
			},
		},
	}

	rec := getListingByURL(t, src, "/api/v1/listings/by-url?url=https%3A%2F%2Fx.test%2Fitem%2F1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.ListingRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.URL != "https://x.test/item/1" {
		t.Errorf("unexpected URL %q", got.URL)
	}
	if got.PriceValue == nil || *got.PriceValue != 45000 {
		t.Errorf("expected price value 45000, got %v", got.PriceValue)
	}
	if got.Description != "Сдается надолго." {
		t.Errorf("lookup should return the full record, got description %q", got.Description)
	}
}

func TestListingByURLHandler_UnknownURLIs404(t *testing.T) {
	src := &fakeSource{}

	rec := getListingByURL(t, src, "/api/v1/listings/by-url?url=https%3A%2F%2Fx.test%2Fitem%2Fmissing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != "not_found" {
		t.Errorf("expected not_found, got %q", resp.Error)
	}
}

func TestListingByURLHandler_MissingParamIs400(t *testing.T) {
	src := &fakeSource{}

	rec := getListingByURL(t, src, "/api/v1/listings/by-url")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
