package workers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"arenda-utils/internal/config"
	"arenda-utils/internal/logging"
	"arenda-utils/pkg/utils"
)

// DomainLimiter tracks request budget and counters for one target domain.
type DomainLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	requests int64
	failures int64
	mu       sync.RWMutex
}

// CircuitBreaker stops runs against a domain that keeps failing, giving the
// site time to cool down before we probe it again.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failureCount int
	lastFailTime time.Time
	state        CircuitState
	mu           sync.Mutex
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// RateLimiter manages rate limiting and circuit breaking per domain.
type RateLimiter struct {
	config          *config.Config
	domainLimiters  map[string]*DomainLimiter
	circuitBreakers map[string]*CircuitBreaker
	mu              sync.RWMutex
	logger          logging.Logger
	cleanupTicker   *time.Ticker
	stopCleanup     chan bool
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	rl := &RateLimiter{
		config:          cfg,
		domainLimiters:  make(map[string]*DomainLimiter),
		circuitBreakers: make(map[string]*CircuitBreaker),
		logger:          logging.GetGlobalLogger().WithField("component", "rate_limiter"),
		cleanupTicker:   time.NewTicker(5 * time.Minute),
		stopCleanup:     make(chan bool),
	}

	go rl.cleanupRoutine()

	return rl
}

// Allow checks if a run against the given domain may start right now.
func (rl *RateLimiter) Allow(domain string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	domain = strings.ToLower(domain)

	if !rl.isCircuitAllowing(domain) {
		rl.logger.Debug("Run rejected by circuit breaker", map[string]interface{}{
			"domain": domain,
		})
		return false
	}

	limiter := rl.getDomainLimiter(domain)

	allowed := limiter.limiter.Allow()
	if allowed {
		limiter.mu.Lock()
		limiter.requests++
		limiter.lastSeen = time.Now()
		limiter.mu.Unlock()
	} else {
		rl.logger.Debug("Run rejected by rate limiter", map[string]interface{}{
			"domain": domain,
		})
	}

	return allowed
}

// RecordSuccess records a successful run against the domain.
func (rl *RateLimiter) RecordSuccess(domain string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	domain = strings.ToLower(domain)

	if cb, exists := rl.circuitBreakers[domain]; exists {
		cb.mu.Lock()
		if cb.state == CircuitHalfOpen {
			cb.state = CircuitClosed
			cb.failureCount = 0
			rl.logger.Info("Circuit breaker closed after successful run", map[string]interface{}{
				"domain": domain,
			})
		}
		cb.mu.Unlock()
	}
}

// RecordFailure records a failed run against the domain.
func (rl *RateLimiter) RecordFailure(domain string, err error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	domain = strings.ToLower(domain)

	if limiter, exists := rl.domainLimiters[domain]; exists {
		limiter.mu.Lock()
		limiter.failures++
		limiter.mu.Unlock()
	}

	cb := rl.getCircuitBreaker(domain)
	cb.mu.Lock()
	cb.failureCount++
	cb.lastFailTime = time.Now()

	if cb.failureCount >= cb.maxFailures && cb.state == CircuitClosed {
		cb.state = CircuitOpen
		rl.logger.Warn("Circuit breaker opened after repeated failures", map[string]interface{}{
			"domain":   domain,
			"failures": cb.failureCount,
			"error":    err.Error(),
		})
	}
	cb.mu.Unlock()
}

// getDomainLimiter gets or creates a rate limiter for a domain.
// Caller must hold rl.mu.
func (rl *RateLimiter) getDomainLimiter(domain string) *DomainLimiter {
	if limiter, exists := rl.domainLimiters[domain]; exists {
		return limiter
	}

	// Configured as requests per minute
	rps := rate.Limit(float64(rl.config.Workers.RateLimit) / 60.0)
	burst := 5

	limiter := &DomainLimiter{
		limiter:  rate.NewLimiter(rps, burst),
		lastSeen: time.Now(),
	}

	rl.domainLimiters[domain] = limiter

	rl.logger.Debug("Created domain rate limiter", map[string]interface{}{
		"domain": domain,
		"rate":   float64(rps),
		"burst":  burst,
	})

	return limiter
}

// getCircuitBreaker gets or creates a circuit breaker for a domain.
// Caller must hold rl.mu.
func (rl *RateLimiter) getCircuitBreaker(domain string) *CircuitBreaker {
	if cb, exists := rl.circuitBreakers[domain]; exists {
		return cb
	}

	cb := &CircuitBreaker{
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        CircuitClosed,
	}

	rl.circuitBreakers[domain] = cb

	return cb
}

// isCircuitAllowing reports whether the breaker lets a run through, moving an
// open circuit to half-open once its reset timeout has passed.
func (rl *RateLimiter) isCircuitAllowing(domain string) bool {
	cb := rl.getCircuitBreaker(domain)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			rl.logger.Info("Circuit breaker transitioned to half-open", map[string]interface{}{
				"domain": domain,
			})
			return true
		}
		return false
	default:
		return false
	}
}

// GetDomainStats returns statistics for a specific domain.
func (rl *RateLimiter) GetDomainStats(domain string) map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	domain = strings.ToLower(domain)
	stats := make(map[string]interface{})

	if limiter, exists := rl.domainLimiters[domain]; exists {
		limiter.mu.RLock()
		stats["requests"] = limiter.requests
		stats["failures"] = limiter.failures
		stats["last_seen"] = limiter.lastSeen
		stats["limit"] = float64(limiter.limiter.Limit())
		stats["burst"] = limiter.limiter.Burst()
		limiter.mu.RUnlock()
	}

	if cb, exists := rl.circuitBreakers[domain]; exists {
		cb.mu.Lock()
		stats["circuit_state"] = cb.state.String()
		stats["failure_count"] = cb.failureCount
		stats["max_failures"] = cb.maxFailures
		cb.mu.Unlock()
	}

	return stats
}

// GetAllStats returns statistics for all tracked domains.
func (rl *RateLimiter) GetAllStats() map[string]map[string]interface{} {
	rl.mu.RLock()

	domains := make(map[string]bool)
	for domain := range rl.domainLimiters {
		domains[domain] = true
	}
	for domain := range rl.circuitBreakers {
		domains[domain] = true
	}
	rl.mu.RUnlock()

	allStats := make(map[string]map[string]interface{})
	for domain := range domains {
		allStats[domain] = rl.GetDomainStats(domain)
	}

	return allStats
}

// cleanupRoutine periodically drops limiters for domains we stopped hitting.
func (rl *RateLimiter) cleanupRoutine() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			rl.cleanupTicker.Stop()
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	removed := 0

	for domain, limiter := range rl.domainLimiters {
		limiter.mu.RLock()
		lastSeen := limiter.lastSeen
		limiter.mu.RUnlock()

		if lastSeen.Before(cutoff) {
			delete(rl.domainLimiters, domain)
			removed++
		}
	}

	for domain, cb := range rl.circuitBreakers {
		cb.mu.Lock()
		idle := cb.state == CircuitClosed && cb.lastFailTime.Before(cutoff)
		cb.mu.Unlock()

		if idle {
			delete(rl.circuitBreakers, domain)
		}
	}

	if removed > 0 {
		rl.logger.Debug("Cleaned up idle rate limiters", map[string]interface{}{
			"removed": removed,
		})
	}
}

// Stop stops the rate limiter and its cleanup routine.
func (rl *RateLimiter) Stop() {
	rl.stopCleanup <- true
}

// String returns string representation of CircuitState
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// domainForRateLimit extracts the hostname a run will hit, for budgeting.
func domainForRateLimit(target string) string {
	domain, err := utils.ExtractDomain(target)
	if err != nil {
		return "unknown"
	}
	return domain
}
