// Package health reports whether the services an indexing run writes to are
// reachable. The readiness report is served beside /metrics so a long build
// can be watched from outside.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Pinger is satisfied by the Redis, PostgreSQL and Kafka clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth holds the result of probing one dependency.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregate of all probes. Status is down when any component
// is down.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Down lists the components that failed their probe, sorted by name.
func (r Report) Down() []string {
	var names []string
	for name, c := range r.Components {
		if c.Status == StatusDown {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type Checker struct {
	mu      sync.RWMutex
	pingers map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker whose probes each get at most timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		pingers: make(map[string]Pinger),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds a named dependency. Registering a name twice replaces the
// earlier probe.
func (c *Checker) Register(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingers[name] = p
}

// Run probes every registered dependency concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	pingers := make(map[string]Pinger, len(c.pingers))
	for name, p := range c.pingers {
		pingers[name] = p
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(pingers)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, p := range pingers {
		wg.Go(func() {
			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			result := ComponentHealth{Status: StatusUp}
			if err := p.Ping(probeCtx); err != nil {
				result = ComponentHealth{Status: StatusDown, Message: err.Error()}
				c.logger.Warn("dependency unreachable", "dependency", name, "error", err)
			}
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()
	if len(report.Down()) > 0 {
		report.Status = StatusDown
	}
	return report
}

// ReadyHandler answers 200 with the report when every dependency is up and
// 503 otherwise.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUp {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// LiveHandler always answers 200 while the process is serving.
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
