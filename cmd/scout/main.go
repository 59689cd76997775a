package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/runner"
	"arenda-utils/internal/scraper"
	"arenda-utils/internal/scraper/captcha"
	"arenda-utils/internal/session"
	"arenda-utils/internal/store"
)

func main() {
	var (
		targetURL  = flag.String("url", "", "catalog URL to scrape once (defaults to the configured target)")
		filePath   = flag.String("file", "", "local markup dump to extract from instead of fetching")
		configPath = flag.String("config", "configs/config.yaml", "path to the configuration file")
	)
	flag.Parse()

	if *targetURL != "" && *filePath != "" {
		fmt.Fprintln(os.Stderr, "use either -url or -file, not both")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger := logging.GetGlobalLogger()

	identityPool, err := identity.NewPool(identity.Options{
		UserAgent:      cfg.Scraper.UserAgent,
		UserAgentsFile: cfg.Scraper.UserAgentsFile,
		Proxy:          cfg.Scraper.Proxy,
		ProxiesFile:    cfg.Scraper.ProxiesFile,
	})
	if err != nil {
		logger.Fatal("Failed to build identity pool", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cookies := session.NewStore(cfg.Scraper.CookieFile)
	solver := captcha.NewSolver(cfg)
	sink := artifacts.NewSink(cfg)
	defer sink.Close()

	listingStore, err := store.New(cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open listing store", map[string]interface{}{
			"path":  cfg.Store.Path,
			"error": err.Error(),
		})
	}
	defer listingStore.Close()

	factory := scraper.NewFetcherFactory(cfg, identityPool, cookies, solver, sink)
	fetcher, err := factory.CreateFetcher("auto")
	if err != nil {
		logger.Fatal("Failed to create fetcher", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer fetcher.Cleanup()

	r := runner.NewRunner(cfg, fetcher, listingStore, sink)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Workers.Timeout)
	defer cancel()

	var saved int
	if *filePath != "" {
		saved, err = r.RunOnFile(ctx, *filePath)
	} else {
		saved, err = r.RunOnce(ctx, *targetURL)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed after saving %d listings: %v\n", saved, err)
		os.Exit(1)
	}

	fmt.Printf("saved %d listings\n", saved)
}
