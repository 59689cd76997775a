package headed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper/captcha"
	"arenda-utils/internal/session"
	"arenda-utils/pkg/utils"
)

const (
	// Listing pages announce themselves with the item title anchor; partially
	// rendered catalogs still carry the serp container or card bodies.
	titleMarkerSelector   = `a[data-marker="item-title"]`
	catalogMarkerSelector = `[data-marker="catalog-serp"], .iva-item-content-fRmzq, .iva-item-body-oMJBI`

	// Sitekey lives on the widget element itself
	captchaProbeSelector = `div.g-recaptcha, div[data-sitekey], *[data-sitekey]`

	markerWait  = 10 * time.Second
	networkIdle = 1 * time.Second
)

// RodFetcher renders catalog pages in a real browser. It is the single
// escalation target when plain HTTP is blocked: one isolated session per
// call, its own identity draw, cookies restored on the way in and persisted
// on the way out. It never retries internally; a failed render is the
// caller's problem.
type RodFetcher struct {
	config  *config.Config
	pool    *identity.Pool
	cookies *session.Store
	solver  captcha.Solver
	sink    artifacts.Sink
	logger  logging.Logger
}

// NewRodFetcher creates a browser-backed fetcher.
func NewRodFetcher(cfg *config.Config, pool *identity.Pool, cookies *session.Store, solver captcha.Solver, sink artifacts.Sink) *RodFetcher {
	return &RodFetcher{
		config:  cfg,
		pool:    pool,
		cookies: cookies,
		solver:  solver,
		sink:    sink,
		logger:  logging.GetGlobalLogger().WithField("component", "browser_fetcher"),
	}
}

// Fetch renders the target URL and returns the resulting markup. The page is
// given every chance to finish loading (load event, network idle, listing
// markers, a scroll pass for lazy content) but none of those waits is fatal
// on its own; only navigation and markup capture can fail the fetch.
func (f *RodFetcher) Fetch(ctx context.Context, target string, params url.Values) (string, error) {
	requestURL, err := utils.BuildRequestURL(target, params)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}

	runID := utils.GenerateRequestID()
	id := f.pool.Next()

	f.logger.Info("Escalating to browser session", map[string]interface{}{
		"url":    requestURL,
		"run_id": runID,
	})

	sess, err := NewSession(f.config, id)
	if err != nil {
		return "", fmt.Errorf("failed to start browser session: %w", err)
	}
	defer sess.Close()

	if err := sess.RestoreCookies(f.cookies.Load(), requestURL); err != nil {
		f.logger.Warn("Could not restore cookies, starting cold", map[string]interface{}{
			"error": err.Error(),
		})
	}

	page := sess.Page.Context(ctx)
	navTimeout := f.config.Browser.NavTimeout

	err = rod.Try(func() {
		page.Timeout(navTimeout).MustNavigate(requestURL)
	})
	if err != nil {
		return "", fmt.Errorf("browser navigation failed: %w", err)
	}

	if err := rod.Try(func() { page.Timeout(navTimeout).MustWaitLoad() }); err != nil {
		f.logger.Warn("Load event never fired, continuing with partial page", map[string]interface{}{
			"error": err.Error(),
		})
	}

	f.waitNetworkIdle(page, navTimeout)
	f.waitForListingMarkers(page)
	f.scrollThroughCatalog(page)
	f.resolveCaptcha(ctx, sess, page, requestURL)

	html, err := sess.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to capture rendered page: %w", err)
	}

	if err := f.cookies.Save(sess.SnapshotCookies(requestURL)); err != nil {
		f.logger.Warn("Failed to persist browser cookies", map[string]interface{}{
			"error": err.Error(),
		})
	}

	f.captureArtifacts(ctx, sess, runID, html)

	f.logger.Info("Browser fetch completed", map[string]interface{}{
		"url":    requestURL,
		"run_id": runID,
		"bytes":  len(html),
	})

	return html, nil
}

// waitNetworkIdle blocks until the page has been quiet for a second, bounded
// by the navigation timeout.
func (f *RodFetcher) waitNetworkIdle(page *rod.Page, bound time.Duration) {
	err := rod.Try(func() {
		page.Timeout(bound).WaitRequestIdle(networkIdle, nil, nil, nil)()
	})
	if err != nil {
		f.logger.Debug("Network never settled within the timeout", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// waitForListingMarkers waits for either the item title anchor or a catalog
// container to appear. Neither showing up is not an error; the page may be a
// challenge interstitial and the captcha step handles that.
func (f *RodFetcher) waitForListingMarkers(page *rod.Page) {
	_, err := page.Timeout(markerWait).Race().
		Element(titleMarkerSelector).
		Element(catalogMarkerSelector).
		Do()
	if err != nil {
		f.logger.Warn("No listing markers appeared, extracting whatever rendered", map[string]interface{}{
			"waited": markerWait.String(),
		})
	}
}

// scrollThroughCatalog walks the viewport down the page so lazy-loaded cards
// and images get a chance to hydrate.
func (f *RodFetcher) scrollThroughCatalog(page *rod.Page) {
	steps := f.config.Browser.ScrollSteps
	for i := 0; i < steps; i++ {
		err := rod.Try(func() {
			page.MustEval(`(step) => window.scrollBy(0, step)`, f.config.Browser.ScrollStep)
		})
		if err != nil {
			f.logger.Debug("Scroll step failed", map[string]interface{}{
				"step":  i,
				"error": err.Error(),
			})
			return
		}
		time.Sleep(f.config.Browser.ScrollPause)
	}
}

// resolveCaptcha probes for a reCAPTCHA widget and, when a solver is
// configured, injects the solved token and lets the page settle again.
// Solving failures are logged and swallowed: the rendered page may still
// carry extractable listings.
func (f *RodFetcher) resolveCaptcha(ctx context.Context, sess *Session, page *rod.Page, pageURL string) {
	siteKey := f.probeSiteKey(page, sess)
	if siteKey == "" {
		return
	}

	f.logger.Info("Captcha challenge detected", map[string]interface{}{
		"url": pageURL,
	})

	if !f.solver.Enabled() {
		f.logger.Warn("No captcha solver configured, continuing with challenge page", map[string]interface{}{})
		return
	}

	token, err := f.solver.SolveRecaptcha(ctx, siteKey, pageURL)
	if err != nil {
		f.logger.Warn("Captcha solving failed, continuing with rendered page", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := sess.InjectCaptchaToken(token); err != nil {
		f.logger.Warn("Captcha token injection failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	// Give the post-challenge redirect room to finish
	f.waitNetworkIdle(page, f.config.Browser.NavTimeout)
}

// probeSiteKey looks for the widget's data-sitekey attribute in the DOM and
// falls back to scanning the markup for embedded configuration.
func (f *RodFetcher) probeSiteKey(page *rod.Page, sess *Session) string {
	var siteKey string

	err := rod.Try(func() {
		has, el, err := page.Sleeper(rod.NotFoundSleeper).Has(captchaProbeSelector)
		if err != nil || !has {
			return
		}
		if attr, err := el.Attribute("data-sitekey"); err == nil && attr != nil {
			siteKey = *attr
		}
	})
	if err != nil {
		f.logger.Debug("Captcha probe failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if siteKey == "" {
		if html, err := sess.HTML(); err == nil {
			siteKey = captcha.ExtractSiteKey(html)
		}
	}

	return siteKey
}

// captureArtifacts stores the rendered markup and a screenshot for later
// inspection. Best effort: failures are logged by the sink helper.
func (f *RodFetcher) captureArtifacts(ctx context.Context, sess *Session, runID, html string) {
	if !f.config.Artifacts.Enabled {
		return
	}

	artifacts.TryPut(ctx, f.sink, runID, "browser_page", []byte(html))

	shot, err := sess.Page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		f.logger.Debug("Screenshot capture failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	artifacts.TryPut(ctx, f.sink, runID, "browser_screenshot", shot)
}

// Cleanup releases fetcher resources. Sessions are per-call so there is
// nothing standing to tear down.
func (f *RodFetcher) Cleanup() {}

// IsHealthy reports whether the fetcher can serve requests.
func (f *RodFetcher) IsHealthy() bool {
	return true
}
