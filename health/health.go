// Package health reports the state of the gateway's backing services.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotReady = errors.New("health: component not ready")

const defaultTimeout = 3 * time.Second

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Checker probes one dependency.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// ComponentStatus is the outcome of one check.
type ComponentStatus struct {
	Name      string  `json:"name"`
	Up        bool    `json:"up"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// Report is the state of every registered component.
type Report struct {
	Status     Status            `json:"status"`
	Components []ComponentStatus `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Registry runs named checkers concurrently, each under its own timeout.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	Timeout  time.Duration
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker), Timeout: defaultTimeout}
}

func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Names returns the registered component names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report checks every component. With nothing registered the service is
// healthy; with every component down it is down.
func (r *Registry) Report(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for name, c := range r.checkers {
		checkers[name] = c
	}
	r.mu.RUnlock()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	results := make(chan ComponentStatus, len(checkers))
	for name, c := range checkers {
		go func(name string, c Checker) {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			status := ComponentStatus{
				Name:      name,
				Up:        err == nil,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				status.Error = err.Error()
			}
			results <- status
		}(name, c)
	}

	report := Report{Status: StatusHealthy, Components: make([]ComponentStatus, 0, len(checkers)), CheckedAt: time.Now().UTC()}
	down := 0
	for range checkers {
		s := <-results
		if !s.Up {
			down++
		}
		report.Components = append(report.Components, s)
	}
	sort.Slice(report.Components, func(i, j int) bool { return report.Components[i].Name < report.Components[j].Name })

	switch {
	case down == 0:
		report.Status = StatusHealthy
	case down == len(checkers):
		report.Status = StatusDown
	default:
		report.Status = StatusDegraded
	}
	return report
}
