package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/health"
)

func get(t *testing.T, fn http.HandlerFunc, path string) (int, health.Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var r health.Report
	if err := sonic.ConfigDefault.NewDecoder(rec.Body).Decode(&r); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	return rec.Code, r
}

func TestLivenessHandler(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 4, 12, 19, 0, 0, 0, time.UTC))
	h := health.NewHandler(clk)
	clk.Advance(90 * time.Second)

	code, r := get(t, h.LivenessHandler(), "/healthz")
	if code != http.StatusOK || r.Status != "ok" {
		t.Errorf("liveness = (%d, %q), want (200, ok)", code, r.Status)
	}
	if r.Uptime != "1m30s" {
		t.Errorf("uptime = %q, want 1m30s", r.Uptime)
	}
}

func TestReadinessHandler(t *testing.T) {
	failing := health.Checker{Name: "database", Check: func(ctx context.Context) error {
		return errors.New("connection refused")
	}}
	passing := health.Checker{Name: "database", Check: func(ctx context.Context) error {
		return nil
	}}

	tests := []struct {
		name       string
		ready      bool
		checkers   []health.Checker
		wantCode   int
		wantStatus string
		wantCheck  string
	}{
		{"not ready", false, nil, http.StatusServiceUnavailable, "not_ready", ""},
		{"ready no checkers", true, nil, http.StatusOK, "ready", ""},
		{"ready check passes", true, []health.Checker{passing}, http.StatusOK, "ready", "ok"},
		{"ready check fails", true, []health.Checker{failing}, http.StatusServiceUnavailable, "not_ready", "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(clock.Real{}, tt.checkers...)
			h.SetReady(tt.ready)

			code, r := get(t, h.ReadinessHandler(), "/readyz")
			if code != tt.wantCode || r.Status != tt.wantStatus {
				t.Errorf("readiness = (%d, %q), want (%d, %q)", code, r.Status, tt.wantCode, tt.wantStatus)
			}
			if tt.wantCheck != "" && r.Checks["database"] != tt.wantCheck {
				t.Errorf("database check = %q, want %q", r.Checks["database"], tt.wantCheck)
			}
		})
	}
}
