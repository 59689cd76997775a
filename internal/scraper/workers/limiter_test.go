package workers

import (
	"errors"
	"testing"

	"arenda-utils/internal/config"
)

func limiterConfig(ratePerMinute int) *config.Config {
	cfg := &config.Config{}
	cfg.Workers.RateLimit = ratePerMinute
	return cfg
}

func TestRateLimiter_AllowsWithinBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(1))
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		if !rl.Allow("x.test") {
			t.Fatalf("request %d rejected within burst budget", i+1)
		}
	}
	if rl.Allow("x.test") {
		t.Fatal("sixth immediate request should exceed the burst budget")
	}
}

func TestRateLimiter_DomainsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(1))
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow("x.test")
	}
	if rl.Allow("x.test") {
		t.Fatal("x.test budget should be exhausted")
	}
	if !rl.Allow("y.test") {
		t.Fatal("y.test has its own budget and should be allowed")
	}
}

func TestRateLimiter_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(6000))
	defer rl.Stop()

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		rl.RecordFailure("x.test", boom)
	}

	if rl.Allow("x.test") {
		t.Fatal("circuit should be open after five straight failures")
	}

	stats := rl.GetDomainStats("x.test")
	if stats["circuit_state"] != "open" {
		t.Errorf("circuit_state = %v, want open", stats["circuit_state"])
	}
}

func TestRateLimiter_SuccessClosesHalfOpenCircuit(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(6000))
	defer rl.Stop()

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		rl.RecordFailure("x.test", boom)
	}

	// Force the breaker past its reset timeout
	rl.mu.Lock()
	cb := rl.circuitBreakers["x.test"]
	rl.mu.Unlock()
	cb.mu.Lock()
	cb.lastFailTime = cb.lastFailTime.Add(-cb.resetTimeout - 1)
	cb.mu.Unlock()

	if !rl.Allow("x.test") {
		t.Fatal("half-open circuit should let a probe through")
	}

	rl.RecordSuccess("x.test")

	stats := rl.GetDomainStats("x.test")
	if stats["circuit_state"] != "closed" {
		t.Errorf("circuit_state = %v, want closed after a successful probe", stats["circuit_state"])
	}
}
