package health

import (
	"context"
	"sync"
	"time"
)

// CheckResult is the outcome of a single dependency probe, serialized as-is
// on the readiness endpoint.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner caches probe results for a short interval so readiness traffic
// does not hammer the backing stores.
type ProbeRunner struct {
	interval time.Duration
	timeout  time.Duration
	checkers []Checker

	mu        sync.Mutex
	lastRun   time.Time
	lastReady bool
	lastRes   []CheckResult
}

func NewProbeRunner(interval, timeout time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{interval: interval, timeout: timeout, checkers: checkers}
}

// Ready reports whether every registered dependency is healthy. Cached
// results are reused within the configured interval.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastRes != nil && time.Since(p.lastRun) < p.interval {
		return p.lastReady, append([]CheckResult(nil), p.lastRes...)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		res := c.Check(ctx)
		if !res.Healthy {
			ready = false
		}
		results = append(results, res)
	}

	p.lastRun = time.Now()
	p.lastReady = ready
	p.lastRes = results
	return ready, append([]CheckResult(nil), results...)
}
