package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func performN(h http.Handler, n int, remoteAddr string) []*httptest.ResponseRecorder {
	out := make([]*httptest.ResponseRecorder, 0, n)
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		out = append(out, rr)
	}
	return out
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterEnforcesWindowLimit(t *testing.T) {
	h := NewRateLimiter(2, time.Minute, "test").Middleware()(okHandler())

	results := performN(h, 3, "10.0.0.1:1000")
	if results[0].Code != http.StatusOK || results[1].Code != http.StatusOK {
		t.Fatalf("first two requests must pass: %d %d", results[0].Code, results[1].Code)
	}
	if results[2].Code != http.StatusTooManyRequests {
		t.Fatalf("third request must be limited, got %d", results[2].Code)
	}
	if results[2].Header().Get("Retry-After") == "" {
		t.Fatal("limited response must carry Retry-After")
	}
	if results[2].Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected remaining header %q", results[2].Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterKeysByClientIP(t *testing.T) {
	h := NewRateLimiter(1, time.Minute, "test").Middleware()(okHandler())

	first := performN(h, 1, "10.0.0.1:1000")[0]
	otherClient := performN(h, 1, "10.0.0.2:1000")[0]
	sameClient := performN(h, 1, "10.0.0.1:2000")[0]

	if first.Code != http.StatusOK {
		t.Fatalf("first client first request must pass, got %d", first.Code)
	}
	if otherClient.Code != http.StatusOK {
		t.Fatalf("different client must have its own window, got %d", otherClient.Code)
	}
	if sameClient.Code != http.StatusTooManyRequests {
		t.Fatalf("same ip different port must share the window, got %d", sameClient.Code)
	}
}

func TestRateLimiterSetsInformationalHeaders(t *testing.T) {
	h := NewRateLimiter(5, time.Minute, "test").Middleware()(okHandler())
	rr := performN(h, 1, "10.0.0.9:1000")[0]

	if rr.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining header %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected reset header")
	}
}

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func TestRateLimiterFailureModes(t *testing.T) {
	t.Run("fail open allows", func(t *testing.T) {
		h := NewDistributedRateLimiter(erroringLimiter{}, 10, time.Minute, FailOpen, "test").Middleware()(okHandler())
		rr := performN(h, 1, "10.0.0.1:1000")[0]
		if rr.Code != http.StatusOK {
			t.Fatalf("fail-open must allow on backend error, got %d", rr.Code)
		}
	})

	t.Run("fail closed denies", func(t *testing.T) {
		h := NewDistributedRateLimiter(erroringLimiter{}, 10, time.Minute, FailClosed, "test").Middleware()(okHandler())
		rr := performN(h, 1, "10.0.0.1:1000")[0]
		if rr.Code != http.StatusTooManyRequests {
			t.Fatalf("fail-closed must deny on backend error, got %d", rr.Code)
		}
		if rr.Header().Get("Retry-After") == "" {
			t.Fatal("fail-closed denial must carry Retry-After")
		}
	})
}

func TestNormalizePolicyFloors(t *testing.T) {
	p := normalizePolicy(RateLimitPolicy{Limit: 0, Window: 0})
	if p.Limit != 1 || p.Window != time.Minute {
		t.Fatalf("unexpected normalized policy %+v", p)
	}
}
