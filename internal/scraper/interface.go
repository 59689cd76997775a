package scraper

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for all fetch engines
type Fetcher interface {
	// Fetch retrieves the markup behind the URL with the given query parameters
	Fetch(ctx context.Context, target string, params url.Values) (string, error)

	// Cleanup releases any resources used by the fetcher
	Cleanup()

	// IsHealthy returns true if the fetcher is ready to serve requests
	IsHealthy() bool
}

// FetcherFactory creates fetchers based on engine type
type FetcherFactory interface {
	// CreateFetcher creates a new fetcher instance for the given engine
	CreateFetcher(engine string) (Fetcher, error)

	// GetSupportedEngines returns a list of supported engine types
	GetSupportedEngines() []string
}
