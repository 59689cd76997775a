package primary

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper/captcha"
	"arenda-utils/internal/session"
	"arenda-utils/pkg/utils"
)

// Fallback is the escalation target once every plain HTTP attempt has been
// blocked. It is consulted exactly once per Fetch call and its result is
// returned as-is.
type Fallback interface {
	Fetch(ctx context.Context, target string, params url.Values) (string, error)
}

// Baseline request headers presented on every attempt. The user agent is
// layered on top from the identity draw.
var baselineHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
	"Cache-Control":             "max-age=0",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Client fetches catalog pages over plain HTTP. Soft blocks are retried with
// exponential backoff and a freshly rotated identity: the blocking statuses
// (403, 429, 503) and challenge walls served behind a success status both
// count. Any other non-success status and any transport failure surface
// immediately. The cookie jar is written back to the session store after
// every attempt so a partially blocked run still leaves usable state behind.
type Client struct {
	config   *config.Config
	pool     *identity.Pool
	cookies  *session.Store
	fallback Fallback
	logger   logging.Logger

	// sleep is swappable so tests can observe backoff without waiting
	sleep func(time.Duration)
}

// NewClient creates a primary HTTP fetcher. fallback may be nil, in which
// case exhaustion surfaces as an error instead of escalating.
func NewClient(cfg *config.Config, pool *identity.Pool, cookies *session.Store, fallback Fallback) *Client {
	return &Client{
		config:   cfg,
		pool:     pool,
		cookies:  cookies,
		fallback: fallback,
		logger:   logging.GetGlobalLogger().WithField("component", "primary_fetcher"),
		sleep:    time.Sleep,
	}
}

// Fetch retrieves the markup behind the URL with the given query parameters.
func (c *Client) Fetch(ctx context.Context, target string, params url.Values) (string, error) {
	requestURL, err := utils.BuildRequestURL(target, params)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}

	siteURL, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.restoreCookies(jar, siteURL)

	maxAttempts := c.config.Scraper.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id := c.pool.Next()

		status, body, err := c.attempt(ctx, requestURL, id, jar)
		if err != nil {
			return "", err
		}

		// The jar now reflects every Set-Cookie the site sent, block pages included
		c.persistCookies(jar, siteURL)

		switch status {
		case http.StatusOK, http.StatusCreated:
			if !captcha.HasChallenge(body) {
				return body, nil
			}
			// The site answers challenges with a 200, so the body decides
			lastStatus = status
			delay := c.backoffDelay(attempt)
			c.logger.Warn("challenge wall behind success status, backing off", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"delay":        delay.String(),
			})
			c.sleep(delay)
		case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
			lastStatus = status
			delay := c.backoffDelay(attempt)
			c.logger.Warn("fetch attempt blocked, backing off", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"status":       status,
				"delay":        delay.String(),
			})
			c.sleep(delay)
		default:
			return "", fmt.Errorf("fetch %s: unexpected status %d", requestURL, status)
		}
	}

	if c.fallback == nil {
		return "", fmt.Errorf("fetch %s: blocked after %d attempts, last status %d", requestURL, maxAttempts, lastStatus)
	}

	c.logger.Warn("all attempts blocked, escalating to browser engine", map[string]interface{}{
		"url":         target,
		"attempts":    maxAttempts,
		"last_status": lastStatus,
	})
	return c.fallback.Fetch(ctx, target, params)
}

// attempt issues a single GET with the drawn identity. Transport failures are
// returned as errors; anti-bot statuses come back as plain status codes for
// the caller to classify.
func (c *Client) attempt(ctx context.Context, requestURL string, id identity.Identity, jar http.CookieJar) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}

	for name, value := range baselineHeaders {
		req.Header.Set(name, value)
	}
	if id.UserAgent != "" {
		req.Header.Set("User-Agent", id.UserAgent)
	}

	client := &http.Client{
		Transport: c.transportFor(id.Proxy),
		Jar:       jar,
		Timeout:   c.config.Scraper.RequestTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, string(body), nil
}

// transportFor builds a transport routed through the given proxy, or a direct
// one when the proxy is empty or unparseable.
func (c *Client) transportFor(proxy string) *http.Transport {
	transport := &http.Transport{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			c.logger.Warn("ignoring unparseable proxy", map[string]interface{}{
				"proxy": proxy,
				"error": err.Error(),
			})
			return transport
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return transport
}

// backoffDelay computes the pause after a blocked attempt: exponential in the
// attempt number, capped, plus a small random jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if limit := c.config.Scraper.BackoffCap; limit > 0 && base > limit {
		base = limit
	}

	jitter := time.Duration(rand.Float64() * float64(c.config.Scraper.JitterMax))
	return base + jitter
}

// restoreCookies seeds the jar with the persisted cookie set.
func (c *Client) restoreCookies(jar http.CookieJar, siteURL *url.URL) {
	stored := c.cookies.Load()
	if len(stored) == 0 {
		return
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for name, value := range stored {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(siteURL, cookies)
}

// persistCookies writes the jar back to the session store. Persistence
// failures are logged, not surfaced: the fetch result matters more than the
// side effect.
func (c *Client) persistCookies(jar http.CookieJar, siteURL *url.URL) {
	snapshot := make(map[string]string)
	for _, cookie := range jar.Cookies(siteURL) {
		snapshot[cookie.Name] = cookie.Value
	}

	if err := c.cookies.Save(snapshot); err != nil {
		c.logger.Warn("failed to persist cookies", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Cleanup releases any resources used by the fetcher.
func (c *Client) Cleanup() {}

// IsHealthy returns true if the fetcher is ready to serve requests.
func (c *Client) IsHealthy() bool {
	return true
}
