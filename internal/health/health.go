// Package health runs named checks concurrently and serves the report over
// HTTP for liveness and readiness checks.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Check is a single named health check. A Critical check that fails makes
// the whole report unhealthy; other failures only degrade it.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Run      func(context.Context) (Status, error)
}

// Result represents the result of a health check
type Result struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

type Report struct {
	Status    Status             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Duration  time.Duration      `json:"duration"`
	Version   string             `json:"version,omitempty"`
	Results   map[string]*Result `json:"results"`
	Summary   Summary            `json:"summary"`
}

type Summary struct {
	Total          int `json:"total"`
	Healthy        int `json:"healthy"`
	Degraded       int `json:"degraded"`
	Unhealthy      int `json:"unhealthy"`
	CriticalFailed int `json:"critical_failed"`
}

// Ready reports whether every critical check is healthy.
func (r *Report) Ready() bool {
	for _, result := range r.Results {
		if result.Critical && result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Checker manages and executes health checks. It is safe for concurrent use.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	version string
	timeout time.Duration
}

func NewChecker(version string) *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		version: version,
		timeout: 5 * time.Second,
	}
}

// Register adds or replaces a check.
func (c *Checker) Register(check Check) error {
	if check.Name == "" {
		return fmt.Errorf("health check name cannot be empty")
	}
	if check.Run == nil {
		return fmt.Errorf("health check '%s' has no function", check.Name)
	}
	if check.Timeout <= 0 {
		check.Timeout = c.timeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name] = check
	return nil
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check executes all registered checks concurrently.
func (c *Checker) Check(ctx context.Context) *Report {
	start := time.Now()

	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make(map[string]*Result, len(checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			result := execute(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return &Report{
		Status:    overall(results),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Version:   c.version,
		Results:   results,
		Summary:   summarize(results),
	}
}

// CheckOne executes a single check by name.
func (c *Checker) CheckOne(ctx context.Context, name string) (*Result, error) {
	c.mu.RLock()
	check, ok := c.checks[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("health check '%s' not found", name)
	}
	return execute(ctx, check), nil
}

func execute(ctx context.Context, check Check) *Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	status, err := check.Run(ctx)
	result := &Result{
		Name:      check.Name,
		Status:    status,
		Duration:  time.Since(start),
		Timestamp: start,
		Critical:  check.Critical,
	}
	if err != nil {
		result.Error = err.Error()
		if result.Status == StatusHealthy || result.Status == "" {
			result.Status = StatusUnhealthy
		}
	}
	return result
}

func summarize(results map[string]*Result) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		default:
			s.Unhealthy++
			if r.Critical {
				s.CriticalFailed++
			}
		}
	}
	return s
}

func overall(results map[string]*Result) Status {
	if len(results) == 0 {
		return StatusUnknown
	}
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
		case StatusDegraded:
			status = StatusDegraded
		default:
			if r.Critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		}
	}
	return status
}

// Handler serves
//
//	GET /health               full report, 503 when unhealthy
//	GET /health/live          always 200
//	GET /health/ready         200 when every critical check passes
//	GET /health/check/{name}  a single check
func Handler(c *Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy || report.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})
	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": StatusHealthy, "timestamp": time.Now()})
	})
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		status, code := "ready", http.StatusOK
		if !report.Ready() {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "timestamp": report.Timestamp})
	})
	mux.HandleFunc("GET /health/check/{name}", func(w http.ResponseWriter, r *http.Request) {
		result, err := c.CheckOne(r.Context(), r.PathValue("name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		code := http.StatusOK
		if result.Status == StatusUnhealthy || result.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, result)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
