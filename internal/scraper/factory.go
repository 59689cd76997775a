package scraper

import (
	"fmt"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/scraper/captcha"
	"arenda-utils/internal/scraper/engines/headed"
	"arenda-utils/internal/scraper/engines/primary"
	"arenda-utils/internal/session"
)

// DefaultFetcherFactory builds fetchers that share one identity pool, cookie
// store, captcha solver and artifact sink, so every engine sees the same
// session state.
type DefaultFetcherFactory struct {
	config  *config.Config
	pool    *identity.Pool
	cookies *session.Store
	solver  captcha.Solver
	sink    artifacts.Sink
}

// NewFetcherFactory creates a fetcher factory around the shared scraping
// state.
func NewFetcherFactory(cfg *config.Config, pool *identity.Pool, cookies *session.Store, solver captcha.Solver, sink artifacts.Sink) FetcherFactory {
	return &DefaultFetcherFactory{
		config:  cfg,
		pool:    pool,
		cookies: cookies,
		solver:  solver,
		sink:    sink,
	}
}

// ForLineage derives a factory whose fetchers persist cookies to a separate
// lineage file, keeping concurrent workers' sessions apart.
func (f *DefaultFetcherFactory) ForLineage(n int) FetcherFactory {
	return &DefaultFetcherFactory{
		config:  f.config,
		pool:    f.pool,
		cookies: f.cookies.ForLineage(n),
		solver:  f.solver,
		sink:    f.sink,
	}
}

// CreateFetcher creates a fetcher for the given engine. "http" never touches
// a browser, "browser" always renders, and "auto" (the default) tries HTTP
// first with the browser as its blocked-page escape hatch.
func (f *DefaultFetcherFactory) CreateFetcher(engine string) (Fetcher, error) {
	switch engine {
	case "http":
		return primary.NewClient(f.config, f.pool, f.cookies, nil), nil
	case "browser":
		return headed.NewRodFetcher(f.config, f.pool, f.cookies, f.solver, f.sink), nil
	case "auto", "":
		fallback := headed.NewRodFetcher(f.config, f.pool, f.cookies, f.solver, f.sink)
		return primary.NewClient(f.config, f.pool, f.cookies, fallback), nil
	default:
		return nil, fmt.Errorf("unsupported fetch engine: %s", engine)
	}
}

// GetSupportedEngines returns the engine names CreateFetcher accepts.
func (f *DefaultFetcherFactory) GetSupportedEngines() []string {
	return []string{"http", "browser", "auto"}
}
