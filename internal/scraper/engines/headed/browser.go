package headed

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"arenda-utils/internal/config"
	"arenda-utils/internal/identity"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/logging/types"
)

// Session owns a dedicated browser process and a single stealth page. Every
// escalation launches its own session so one blocked run cannot poison the
// profile of the next; Close tears the whole process down.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	Page     *rod.Page
	logger   types.Logger
}

// NewSession launches an isolated browser carrying the given identity. The
// proxy is wired at the process level because Chromium only accepts it as a
// launch flag; credentials, if present, are answered through the auth handler.
func NewSession(cfg *config.Config, id identity.Identity) (*Session, error) {
	logger := logging.GetGlobalLogger()

	l := launcher.New().
		Headless(cfg.Browser.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-web-security").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		// Required in Docker: GPU contexts and /dev/shm are both too small
		Set("disable-gpu").
		Set("disable-dev-shm-usage")

	if chromePath := getSystemChromePath(); chromePath != "" {
		l = l.Bin(chromePath)
		logger.Debug("Using system Chrome browser", map[string]interface{}{
			"chrome_path": chromePath,
		})
	} else {
		logger.Warn("System Chrome not found, Rod will download browser", map[string]interface{}{})
	}

	var proxyUser *url.Userinfo
	if id.Proxy != "" {
		proxyURL, err := url.Parse(id.Proxy)
		if err != nil {
			logger.Warn("Ignoring unparseable proxy for browser session", map[string]interface{}{
				"proxy": id.Proxy,
				"error": err.Error(),
			})
		} else {
			l = l.Proxy(proxyURL.Host)
			proxyUser = proxyURL.User
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if proxyUser != nil {
		password, _ := proxyUser.Password()
		wait := browser.HandleAuth(proxyUser.Username(), password)
		go func() { _ = wait() }()
	}

	page, err := newSessionPage(cfg, browser, id, logger)
	if err != nil {
		_ = rod.Try(func() { browser.MustClose() })
		l.Cleanup()
		return nil, err
	}

	return &Session{
		browser:  browser,
		launcher: l,
		Page:     page,
		logger:   logger,
	}, nil
}

// newSessionPage creates the session's page with the automation fingerprint
// scrubbed and the identity's user agent applied.
func newSessionPage(cfg *config.Config, browser *rod.Browser, id identity.Identity, logger types.Logger) (*rod.Page, error) {
	var page *rod.Page
	var err error

	if cfg.Browser.StealthMode {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		logger.Warn("Failed to set viewport", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if id.UserAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: id.UserAgent,
		})
		if err != nil {
			logger.Warn("Failed to set user agent", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
		"Cache-Control":             "no-cache",
		"Pragma":                    "no-cache",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}

	for name, value := range headers {
		if _, err := page.SetExtraHeaders([]string{name, value}); err != nil {
			logger.Debug("Failed to set header", map[string]interface{}{
				"error":  err.Error(),
				"header": name,
			})
		}
	}

	err = rod.Try(func() {
		page.MustEval(`() => {
			Object.defineProperty(navigator, 'webdriver', {
				get: () => undefined,
			});

			Object.defineProperty(navigator, 'plugins', {
				get: () => [1, 2, 3, 4, 5],
			});

			Object.defineProperty(navigator, 'languages', {
				get: () => ['ru-RU', 'ru', 'en-US'],
			});

			window.chrome = {
				runtime: {},
			};

			const originalQuery = window.navigator.permissions.query;
			window.navigator.permissions.query = (parameters) => (
				parameters.name === 'notifications' ?
					Promise.resolve({ state: Notification.permission }) :
					originalQuery(parameters)
			);

			Object.defineProperty(screen, 'width', {
				get: () => 1920,
			});
			Object.defineProperty(screen, 'height', {
				get: () => 1080,
			});
			Object.defineProperty(screen, 'availWidth', {
				get: () => 1920,
			});
			Object.defineProperty(screen, 'availHeight', {
				get: () => 1050,
			});
		}`)
	})
	if err != nil {
		logger.Warn("Failed to inject stealth JavaScript", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return page, nil
}

// RestoreCookies loads the persisted cookie jar into the session, scoped to
// the target site's hostname. An empty jar is a no-op.
func (s *Session) RestoreCookies(cookies map[string]string, target string) error {
	if len(cookies) == 0 {
		return nil
	}

	siteURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("failed to parse target for cookie domain: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for name, value := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: siteURL.Hostname(),
			Path:   "/",
		})
	}

	if err := s.Page.SetCookies(params); err != nil {
		return fmt.Errorf("failed to restore cookies: %w", err)
	}

	s.logger.Debug("Restored cookies into browser session", map[string]interface{}{
		"count": len(params),
	})
	return nil
}

// SnapshotCookies returns the cookies the site granted this session, flattened
// to name/value pairs for the shared store.
func (s *Session) SnapshotCookies(target string) map[string]string {
	snapshot := make(map[string]string)

	cookies, err := s.Page.Cookies([]string{target})
	if err != nil {
		s.logger.Warn("Failed to read cookies from browser session", map[string]interface{}{
			"error": err.Error(),
		})
		return snapshot
	}

	for _, c := range cookies {
		snapshot[c.Name] = c.Value
	}
	return snapshot
}

// HTML returns the rendered markup of the session's page.
func (s *Session) HTML() (string, error) {
	html, err := s.Page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get page HTML: %w", err)
	}
	return html, nil
}

// InjectCaptchaToken writes a solved reCAPTCHA token into the page, fires the
// widget callback when one is declared, and submits the challenge form. Every
// step is tolerant: the page decides what it honors.
func (s *Session) InjectCaptchaToken(token string) error {
	js := fmt.Sprintf(`() => {
		const token = '%s';

		let area = document.querySelector('textarea#g-recaptcha-response');
		if (!area) {
			area = document.createElement('textarea');
			area.id = 'g-recaptcha-response';
			area.name = 'g-recaptcha-response';
			area.style.display = 'none';
			document.body.appendChild(area);
		}
		area.value = token;
		area.innerHTML = token;

		for (const element of document.querySelectorAll('[name="g-recaptcha-response"]')) {
			element.value = token;
		}

		const widget = document.querySelector('.g-recaptcha, [data-sitekey]');
		if (widget) {
			const callback = widget.getAttribute('data-callback');
			if (callback && typeof window[callback] === 'function') {
				window[callback](token);
			}
		}

		for (const form of document.querySelectorAll('form')) {
			if (form.querySelector('.g-recaptcha') || form.querySelector('[name="g-recaptcha-response"]') || form.querySelector('[data-sitekey]')) {
				form.submit();
				break;
			}
		}
	}`, token)

	if err := rod.Try(func() { s.Page.MustEval(js) }); err != nil {
		return fmt.Errorf("failed to inject captcha token: %w", err)
	}

	// The confirm button is not always inside the form
	_ = rod.Try(func() {
		s.Page.Timeout(2 * time.Second).MustElement(`button[type="submit"]`).MustClick()
	})

	s.logger.Debug("Captcha token injected")
	return nil
}

// Close tears down the page, the browser process, and the launcher's
// temporary profile directory.
func (s *Session) Close() {
	if s.Page != nil {
		_ = rod.Try(func() { s.Page.MustClose() })
	}
	if s.browser != nil {
		_ = rod.Try(func() { s.browser.MustClose() })
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.logger.Debug("Browser session closed")
}

// getSystemChromePath finds the system-installed Chrome/Chromium browser.
func getSystemChromePath() string {
	// Environment variables win so containers can pin the binary
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		if _, err := os.Stat(chromeBin); err == nil {
			return chromeBin
		}
	}

	if chromePath := os.Getenv("CHROME_PATH"); chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
