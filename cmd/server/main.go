package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arenda-utils/internal/api/handlers"
	"arenda-utils/internal/api/routes"
	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper"
	"arenda-utils/internal/scraper/captcha"
	"arenda-utils/internal/scraper/workers"
	"arenda-utils/internal/session"
	"arenda-utils/internal/store"

	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging before anything that logs
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	logger := logging.GetGlobalLogger()
	logger.Info("Starting arenda listings scraper")

	// Identity pool for per-attempt user agent and proxy rotation
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
	logger.Info("Identity pool ready", map[string]interface{}{
		"user_agents": identityPool.UserAgentCount(),
		"proxies":     identityPool.ProxyCount(),
	})

	cookies := session.NewStore(cfg.Scraper.CookieFile)
	solver := captcha.NewSolver(cfg)
	sink := artifacts.NewSink(cfg)

	listingStore, err := store.New(cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open listing store", map[string]interface{}{
			"path":  cfg.Store.Path,
			"error": err.Error(),
		})
	}

	factory := scraper.NewFetcherFactory(cfg, identityPool, cookies, solver, sink)

	// Initialize worker pool
	poolManager := workers.NewPoolManager(cfg, factory, listingStore, sink)
	if err := poolManager.Initialize(); err != nil {
		logger.Fatal("Failed to start worker pool", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer poolManager.Shutdown()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	deps := &handlers.HealthDeps{
		Pool:   poolManager,
		Store:  listingStore,
		Sink:   sink,
		Solver: solver,
	}
	routes.SetupRoutes(e, cfg, poolManager, listingStore, deps)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := poolManager.Shutdown(); err != nil {
			logger.Error("Error stopping worker pool", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if err := listingStore.Close(); err != nil {
			logger.Error("Error closing listing store", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if err := sink.Close(); err != nil {
			logger.Error("Error closing artifact sink", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Server shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{"address": address})

	if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed to start", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
