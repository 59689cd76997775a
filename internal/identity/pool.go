package identity

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// Identity is the disguise for a single fetch attempt: the user agent to
// present and the proxy to route through. Empty values mean no user agent
// header and a direct connection respectively.
type Identity struct {
	UserAgent string
	Proxy     string
}

// Pool hands out identities for fetch attempts. A pinned value always wins
// over the corresponding list; otherwise each draw picks uniformly from the
// list, skipping the previous pick when the list has more than one entry so
// consecutive attempts never present the same disguise.
type Pool struct {
	pinnedUA    string
	pinnedProxy string
	userAgents  []string
	proxies     []string

	mu        sync.Mutex
	rng       *rand.Rand
	lastUA    int
	lastProxy int
}

// Options configures a Pool.
type Options struct {
	UserAgent      string // pinned user agent, wins over the list
	UserAgentsFile string // newline-delimited user agent list
	Proxy          string // pinned proxy URL, wins over the list
	ProxiesFile    string // newline-delimited proxy URL list
}

// NewPool builds a pool from the given options, loading list files when set.
func NewPool(opts Options) (*Pool, error) {
	p := &Pool{
		pinnedUA:    opts.UserAgent,
		pinnedProxy: opts.Proxy,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		lastUA:      -1,
		lastProxy:   -1,
	}

	if opts.UserAgentsFile != "" {
		uas, err := readLines(opts.UserAgentsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load user agents: %w", err)
		}
		p.userAgents = uas
	}

	if opts.ProxiesFile != "" {
		proxies, err := readLines(opts.ProxiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load proxies: %w", err)
		}
		p.proxies = proxies
	}

	return p, nil
}

// NewStaticPool builds a pool from in-memory lists. Used by tests and by
// callers that already hold the lists.
func NewStaticPool(userAgents, proxies []string) *Pool {
	return &Pool{
		userAgents: userAgents,
		proxies:    proxies,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		lastUA:     -1,
		lastProxy:  -1,
	}
}

// Next draws the identity for the next attempt.
func (p *Pool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := Identity{UserAgent: p.pinnedUA, Proxy: p.pinnedProxy}

	if id.UserAgent == "" && len(p.userAgents) > 0 {
		p.lastUA = p.pick(len(p.userAgents), p.lastUA)
		id.UserAgent = p.userAgents[p.lastUA]
	}

	if id.Proxy == "" && len(p.proxies) > 0 {
		p.lastProxy = p.pick(len(p.proxies), p.lastProxy)
		id.Proxy = p.proxies[p.lastProxy]
	}

	return id
}

// UserAgentCount returns the number of user agents available for rotation.
func (p *Pool) UserAgentCount() int {
	if p.pinnedUA != "" {
		return 1
	}
	return len(p.userAgents)
}

// ProxyCount returns the number of proxies available for rotation.
func (p *Pool) ProxyCount() int {
	if p.pinnedProxy != "" {
		return 1
	}
	return len(p.proxies)
}

// pick selects a random index in [0, n), avoiding prev when n > 1.
func (p *Pool) pick(n, prev int) int {
	if n == 1 {
		return 0
	}
	if prev < 0 {
		return p.rng.Intn(n)
	}
	i := p.rng.Intn(n - 1)
	if i >= prev {
		i++
	}
	return i
}

// readLines reads a newline-delimited list file, skipping blank lines and
// comments starting with #.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
