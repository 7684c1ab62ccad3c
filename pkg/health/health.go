// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package health serves liveness, readiness and health reports for the
// admin listener.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one named probe.
type Check struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	DurationMS  int64     `json:"duration_ms"`
}

// Report aggregates all checks, sorted by name.
type Report struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type probe struct {
	id       uint64
	fn       CheckFunc
	critical bool
}

// Checker runs registered probes and caches their results for a TTL.
// A failing critical probe makes the report unhealthy; a failing
// non-critical probe only degrades it.
type Checker struct {
	mu      sync.Mutex
	nextID  uint64
	probes  map[string]probe
	cache   map[string]Check
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewChecker creates a Checker. Zero values select a 5s cache and a 2s
// per-probe timeout.
func NewChecker(cacheTTL, timeout time.Duration) *Checker {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Second
	}
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		probes:  make(map[string]probe),
		cache:   make(map[string]Check),
		ttl:     cacheTTL,
		timeout: timeout,
		now:     time.Now,
	}
}

// Register adds a probe. Registering a name again replaces the probe.
func (c *Checker) Register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.probes[name] = probe{id: c.nextID, fn: fn, critical: critical}
	delete(c.cache, name)
}

// Report runs every probe whose cached result is stale. Probes run without
// holding the checker's lock, so a slow probe only delays its own caller.
func (c *Checker) Report(ctx context.Context) Report {
	c.mu.Lock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, len(names))
	stale := make(map[int]probe)
	for i, name := range names {
		check, ok := c.cache[name]
		if !ok || c.now().Sub(check.LastChecked) >= c.ttl {
			stale[i] = c.probes[name]
			continue
		}
		checks[i] = check
	}
	c.mu.Unlock()

	for i, p := range stale {
		checks[i] = c.run(ctx, names[i], p)
	}

	if len(stale) > 0 {
		c.mu.Lock()
		for i, p := range stale {
			// Skip results for probes replaced or removed while running.
			if cur, ok := c.probes[names[i]]; ok && cur.id == p.id {
				c.cache[names[i]] = checks[i]
			}
		}
		c.mu.Unlock()
	}

	report := Report{Status: StatusHealthy, Checks: checks}
	for _, check := range checks {
		switch {
		case check.Status == StatusHealthy:
		case check.Critical:
			report.Status = StatusUnhealthy
		case report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}

	return report
}

func (c *Checker) run(ctx context.Context, name string, p probe) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	err := p.fn(ctx)

	check := Check{
		Name:        name,
		Status:      StatusHealthy,
		Critical:    p.critical,
		LastChecked: c.now(),
		DurationMS:  c.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}

	return check
}

// Handler reports health. Only an unhealthy report answers 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())

		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// ReadinessHandler answers 503 unless every probe passes.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())

		status := http.StatusOK
		if report.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// LivenessHandler answers 200 while the process can serve HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
