package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config drives a synthetic traffic run against a live instance.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
}

type target struct {
	method string
	path   string
	body   map[string]string
}

// Run fires requests at BaseURL until the duration elapses or ctx is
// cancelled. The profile picks which endpoints get traffic.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("loadgen: base url is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	targets := targetsForProfile(normalizeProfile(cfg.Profile), cfg.Seed)
	client := &http.Client{Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	interval := time.Second / time.Duration(cfg.RPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		mu      sync.Mutex
		res     = &Result{StatusClasses: map[string]int64{}}
		wg      sync.WaitGroup
		work    = make(chan target, cfg.Concurrency)
		rng     = rand.New(rand.NewSource(cfg.Seed))
		rngLock sync.Mutex
	)

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				status, err := fire(ctx, client, cfg.BaseURL, t)
				mu.Lock()
				res.TotalRequests++
				if err != nil {
					res.Failures++
					res.StatusClasses["error"]++
				} else {
					res.StatusClasses[classifyStatusClass(status)]++
				}
				mu.Unlock()
			}
		}()
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			rngLock.Lock()
			t := targets[rng.Intn(len(targets))]
			rngLock.Unlock()
			select {
			case work <- t:
			case <-ctx.Done():
				break loop
			}
		}
	}
	close(work)
	wg.Wait()
	return res, nil
}

func fire(ctx context.Context, client *http.Client, baseURL string, t target) (int, error) {
	var body *bytes.Reader
	if t.body != nil {
		raw, err := json.Marshal(t.body)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, t.method, strings.TrimRight(baseURL, "/")+t.path, body)
	if err != nil {
		return 0, err
	}
	if t.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func targetsForProfile(profile string, seed int64) []target {
	suffix := fmt.Sprintf("%d-%d", seed, time.Now().UnixNano())
	signin := target{method: http.MethodPost, path: "/api/auth/signin", body: map[string]string{
		"email":    "loadgen-" + suffix + "@example.com",
		"password": "not-a-real-password",
	}}
	signup := target{method: http.MethodPost, path: "/api/auth/signup", body: map[string]string{
		"email":        "loadgen-" + suffix + "@example.com",
		"password":     "Loadgen-pass-1",
		"display_name": "Load Generator",
	}}
	live := target{method: http.MethodGet, path: "/health/live"}
	ready := target{method: http.MethodGet, path: "/health/ready"}
	me := target{method: http.MethodGet, path: "/api/auth/me"}

	switch profile {
	case "auth":
		return []target{signin, signup, signin}
	case "health":
		return []target{live, ready}
	default:
		return []target{signin, signup, live, ready, me}
	}
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}
