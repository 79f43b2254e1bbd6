// Package health serves liveness and readiness endpoints. Readiness
// runs the registered checks (database ping, and whatever else main
// wires in) and reports per-check results.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gavelhq/gavel/internal/clock"
)

const checkTimeout = 5 * time.Second

// Report is the response body of both endpoints.
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker is a named readiness check.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers liveness and readiness probes.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	checkers []Checker
	clock    clock.Clock
	started  time.Time
}

// NewHandler creates a Handler running the given checks on readiness.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk, started: clk.Now()}
}

// SetReady flips whether the service accepts traffic. Main sets it true
// once serving (or once elected leader) and false on shutdown.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// LivenessHandler reports the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := h.clock.Now()
		h.write(w, http.StatusOK, Report{
			Status:    "ok",
			Uptime:    now.Sub(h.started).Round(time.Second).String(),
			Timestamp: now.UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler reports whether the service is ready, running every
// registered check when it is.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		h.mu.RUnlock()

		now := h.clock.Now()
		if !ready {
			h.write(w, http.StatusServiceUnavailable, Report{
				Status:    "not_ready",
				Timestamp: now.UTC().Format(time.RFC3339),
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		status, code := "ready", http.StatusOK
		checks := make(map[string]string, len(h.checkers))
		for _, c := range h.checkers {
			if err := c.Check(ctx); err != nil {
				checks[c.Name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
			} else {
				checks[c.Name] = "ok"
			}
		}

		h.write(w, code, Report{
			Status:    status,
			Checks:    checks,
			Timestamp: now.UTC().Format(time.RFC3339),
		})
	}
}

func (h *Handler) write(w http.ResponseWriter, code int, r Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(r)
}
