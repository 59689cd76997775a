package captcha

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"

	"arenda-utils/internal/config"
	"arenda-utils/internal/logging"
)

// Solver solves anti-bot challenges through an external service. The browser
// engine consults Enabled before attempting a solve: without a configured
// credential the challenge is left standing and the fetch proceeds with
// whatever markup the page already rendered.
type Solver interface {
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	IsHealthy() bool
	Enabled() bool
}

// NewSolver builds a solver from configuration. A missing API key yields a
// disabled solver rather than an error.
func NewSolver(cfg *config.Config) Solver {
	if cfg.Scraper.Captcha.APIKey == "" {
		logging.Warn("captcha API key not configured, challenge solving disabled")
		return &disabledSolver{}
	}
	return newTwoCaptchaSolver(cfg)
}

// TwoCaptchaSolver integrates the 2captcha service through its official client
type TwoCaptchaSolver struct {
	config *config.Config
	client *api2captcha.Client
	logger logging.Logger
}

func newTwoCaptchaSolver(cfg *config.Config) *TwoCaptchaSolver {
	logger := logging.GetGlobalLogger().WithField("component", "2captcha")

	client := api2captcha.NewClient(cfg.Scraper.Captcha.APIKey)
	client.DefaultTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.RecaptchaTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.PollingInterval = int(cfg.Scraper.Captcha.PollingInterval.Seconds())

	logger.Info("2captcha solver configured", map[string]interface{}{
		"default_timeout":   client.DefaultTimeout,
		"polling_interval":  client.PollingInterval,
		"enable_auto_solve": cfg.Scraper.Captcha.EnableAutoSolve,
	})

	return &TwoCaptchaSolver{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// Enabled reports whether the solver can be used for challenges.
func (tcs *TwoCaptchaSolver) Enabled() bool {
	return tcs.config.Scraper.Captcha.EnableAutoSolve && tcs.config.Scraper.Captcha.APIKey != ""
}

// SolveRecaptcha submits a reCAPTCHA v2 task and waits for the token.
func (tcs *TwoCaptchaSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !tcs.Enabled() {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}

	tcs.logger.Info("starting reCAPTCHA solve", map[string]interface{}{
		"site_key": siteKey,
		"page_url": pageURL,
	})

	startTime := time.Now()

	captcha := api2captcha.ReCaptcha{
		SiteKey: siteKey,
		Url:     pageURL,
	}

	req := captcha.ToRequest()
	code, _, err := tcs.client.Solve(req)
	if err != nil {
		tcs.logger.Error("reCAPTCHA solve failed", map[string]interface{}{
			"site_key": siteKey,
			"page_url": pageURL,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("failed to solve reCAPTCHA: %w", err)
	}

	tcs.logger.Info("reCAPTCHA solved", map[string]interface{}{
		"site_key":     siteKey,
		"solving_time": time.Since(startTime).String(),
	})

	return code, nil
}

// IsHealthy checks the service by querying the account balance.
func (tcs *TwoCaptchaSolver) IsHealthy() bool {
	if tcs.config.Scraper.Captcha.APIKey == "" {
		return false
	}

	balance, err := tcs.client.GetBalance()
	if err != nil {
		tcs.logger.Error("2captcha health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	return balance >= 0
}

// disabledSolver is used when no credential is configured.
type disabledSolver struct{}

func (d *disabledSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	return "", fmt.Errorf("captcha solver not configured")
}

func (d *disabledSolver) IsHealthy() bool { return false }
func (d *disabledSolver) Enabled() bool   { return false }

var siteKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`data-sitekey="([^"]+)"`),
	regexp.MustCompile(`data-sitekey='([^']+)'`),
	regexp.MustCompile(`"sitekey"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`'sitekey'\s*:\s*'([^']+)'`),
}

// ExtractSiteKey pulls a reCAPTCHA site key out of page markup. Returns the
// empty string when no challenge widget is present.
func ExtractSiteKey(html string) string {
	lower := strings.ToLower(html)
	if !strings.Contains(lower, "g-recaptcha") && !strings.Contains(lower, "data-sitekey") && !strings.Contains(lower, "sitekey") {
		return ""
	}

	for _, pattern := range siteKeyPatterns {
		if matches := pattern.FindStringSubmatch(html); len(matches) > 1 {
			siteKey := strings.TrimSpace(matches[1])
			if len(siteKey) > 10 {
				return siteKey
			}
		}
	}

	return ""
}

// wallHeadingRe captures the page title and top-level headings, where a
// challenge wall announces itself.
var wallHeadingRe = regexp.MustCompile(`(?s)<(?:title|h1|h2)[^>]*>(.*?)</(?:title|h1|h2)>`)

var wallPhrases = []string{
	"доступ ограничен",
	"проверка, что вы не робот",
}

// HasChallenge reports whether the markup looks like a challenge wall rather
// than catalog content. A challenge widget anywhere on the page counts; the
// wall phrases only count inside the title or a heading, since the same words
// can appear in an ordinary listing description.
func HasChallenge(html string) bool {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "data-sitekey") {
		return true
	}

	for _, match := range wallHeadingRe.FindAllStringSubmatch(lower, -1) {
		for _, phrase := range wallPhrases {
			if strings.Contains(match[1], phrase) {
				return true
			}
		}
	}

	return false
}
