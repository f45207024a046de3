package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Target is a named backend to ping.
type Target struct {
	Name    string
	Backend backend.Backend
}

// Service coordinates health checks.
type Service struct {
	monitor *Monitor
	targets []Target
	store   DBPinger
	timeout time.Duration
}

// New creates a Service. store can be nil when topology is static.
func New(monitor *Monitor, targets []Target, store DBPinger, timeout time.Duration) *Service {
	return &Service{monitor: monitor, targets: targets, store: store, timeout: timeout}
}

// Check pings every target concurrently and checks the store.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	var mu sync.Mutex
	set := func(name string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			checks[name] = CheckOK
		} else {
			checks[name] = CheckError
		}
	}

	var g errgroup.Group
	for _, t := range s.targets {
		g.Go(func() error {
			set(t.Name, s.monitor.Ping(ctx, t.Backend, s.timeout).OK())
			return nil
		})
	}
	if s.store != nil {
		g.Go(func() error {
			set("topology_store", s.store.Ping(ctx) == nil)
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks map[string]CheckResult) Status {
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Healthy
	case failed == len(checks):
		return Unhealthy
	default:
		return Degraded
	}
}
