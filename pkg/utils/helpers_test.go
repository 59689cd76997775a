package utils

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildRequestURL_MergesParams(t *testing.T) {
	params := url.Values{}
	params.Set("p", "2")
	params.Set("price_max", "45000")

	got, err := BuildRequestURL("https://www.avito.ru/moskva/kvartiry?s=104", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("result is not a valid URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("s") != "104" {
		t.Errorf("existing query param lost, got %q", got)
	}
	if query.Get("p") != "2" || query.Get("price_max") != "45000" {
		t.Errorf("merged params missing, got %q", got)
	}
}

func TestBuildRequestURL_ParamsWinOverTarget(t *testing.T) {
	params := url.Values{}
	params.Set("p", "3")

	got, err := BuildRequestURL("https://www.avito.ru/moskva/kvartiry?p=1", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, _ := url.Parse(got)
	if pages := parsed.Query()["p"]; len(pages) != 1 || pages[0] != "3" {
		t.Errorf("expected p=3 to replace the target's value, got %q", got)
	}
}

func TestBuildRequestURL_InvalidTarget(t *testing.T) {
	if _, err := BuildRequestURL("https://bad url with spaces", nil); err == nil {
		t.Error("expected an error for an unparseable target")
	}
}

func TestSanitizeQueryParams_DropsEmptyValues(t *testing.T) {
	params := url.Values{}
	params.Set("district", "")
	params.Set("rooms", "2")
	params.Add("metro", "1")
	params.Add("metro", "")

	clean := SanitizeQueryParams(params)

	if _, ok := clean["district"]; ok {
		t.Error("empty-valued param should be dropped")
	}
	if clean.Get("rooms") != "2" {
		t.Errorf("non-empty param lost: %v", clean)
	}
	if metros := clean["metro"]; len(metros) != 1 || metros[0] != "1" {
		t.Errorf("expected only the non-empty metro value, got %v", metros)
	}
}

func TestGetStringOrDefault(t *testing.T) {
	if got := GetStringOrDefault("", "auto"); got != "auto" {
		t.Errorf("expected default for empty value, got %q", got)
	}
	if got := GetStringOrDefault("http", "auto"); got != "http" {
		t.Errorf("expected value to win over default, got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
		{90 * time.Minute, "1.5h"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty IDs")
	}
	if a == b {
		t.Error("consecutive IDs should differ")
	}
}
