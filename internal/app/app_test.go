package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/config"
	"github.com/pipelinecrm/crm-auth-service/internal/health"
)

func newAppForTest(stop func()) *App {
	cfg := &config.Config{
		ShutdownTimeout:              2 * time.Second,
		ShutdownHTTPDrainTimeout:     time.Second,
		ShutdownObservabilityTimeout: time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	readiness := health.NewProbeRunner(100*time.Millisecond, 50*time.Millisecond)
	return New(cfg, logger, server, nil, readiness, stop)
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	a := newAppForTest(nil)

	if a.Config == nil || a.Logger == nil || a.Server == nil || a.Readiness == nil {
		t.Fatal("constructor must wire all dependencies")
	}
	if a.ShutdownTimeout != 2*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", a.ShutdownTimeout)
	}
	if a.ShutdownHTTPDrainTimeout != time.Second || a.ShutdownObservabilityTimeout != time.Second {
		t.Fatalf("unexpected nested timeouts %v %v", a.ShutdownHTTPDrainTimeout, a.ShutdownObservabilityTimeout)
	}
}

func TestStopBackgroundTasksFiresOnce(t *testing.T) {
	calls := 0
	a := newAppForTest(func() { calls++ })

	a.StopBackgroundTasks()
	a.StopBackgroundTasks()

	if calls != 1 {
		t.Fatalf("stop callback must fire exactly once, fired %d times", calls)
	}
}

func TestStopBackgroundTasksNilCallback(t *testing.T) {
	a := newAppForTest(nil)
	a.StopBackgroundTasks()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := newAppForTest(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run must exit cleanly on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
