package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

var errDown = errors.New("connection refused")

func TestHandler_StatusAggregation(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]Checker
		wantStatus Status
		wantCode   int
		wantReady  int
		wantBody   string
	}{
		{
			name:       "all healthy",
			checkers:   map[string]Checker{"storage": NewPingChecker("storage", stubPinger{}, true)},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
			wantBody:   "ready",
		},
		{
			name: "non-critical failure degrades",
			checkers: map[string]Checker{
				"storage": NewPingChecker("storage", stubPinger{}, true),
				"redis":   NewPingChecker("redis", stubPinger{err: errDown}, false),
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
			wantBody:   "ready",
		},
		{
			name: "critical failure wins over degraded",
			checkers: map[string]Checker{
				"storage": NewPingChecker("storage", stubPinger{err: errDown}, true),
				"redis":   NewPingChecker("redis", stubPinger{err: errDown}, false),
			},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
			wantReady:  http.StatusServiceUnavailable,
			wantBody:   "not ready: storage",
		},
		{
			name:       "no checkers",
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
			wantReady:  http.StatusOK,
			wantBody:   "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("1.2.0")
			for name, c := range tt.checkers {
				h.RegisterChecker(name, c)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("healthz code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("unexpected content type %q", ct)
			}

			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode healthz: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Version != "1.2.0" || len(resp.Checks) != len(tt.checkers) {
				t.Fatalf("unexpected healthz response: %+v", resp)
			}

			ready := httptest.NewRecorder()
			h.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if ready.Code != tt.wantReady || ready.Body.String() != tt.wantBody {
				t.Fatalf("readyz = %d %q, want %d %q", ready.Code, ready.Body.String(), tt.wantReady, tt.wantBody)
			}
		})
	}
}

func TestHandler_ReportsCheckDetails(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("redis", NewPingChecker("redis", stubPinger{err: errDown}, false))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	redis := resp.Checks["redis"]
	if redis.Status != StatusDegraded || redis.Critical || redis.Message != errDown.Error() {
		t.Fatalf("unexpected redis check: %+v", redis)
	}
}

func TestRunChecks_Concurrent(t *testing.T) {
	h := NewHandler("dev")
	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		h.RegisterChecker(name, NewFuncChecker(name, slow))
	}

	status, checks := h.RunChecks(context.Background())
	if status != StatusHealthy || len(checks) != 3 {
		t.Fatalf("unexpected result: %s %+v", status, checks)
	}
	if peak.Load() < 2 {
		t.Fatalf("checks must run concurrently, peak=%d", peak.Load())
	}
}

func TestRunChecks_Timeout(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 20 * time.Millisecond
	h.RegisterChecker("storage", NewFuncChecker("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	status, checks := h.RunChecks(context.Background())
	if status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on timeout, got %s", status)
	}
	if checks["storage"].Message != context.DeadlineExceeded.Error() {
		t.Fatalf("unexpected message: %q", checks["storage"].Message)
	}
}

func TestFuncChecker_Duration(t *testing.T) {
	check := NewFuncChecker("slow", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check(context.Background())

	if check.Status != StatusHealthy || !check.Critical {
		t.Fatalf("unexpected check: %+v", check)
	}
	if check.Duration < 10*time.Millisecond || check.DurationMS < 10 {
		t.Fatalf("duration not recorded: %v / %vms", check.Duration, check.DurationMS)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("livez = %d %q", rec.Code, rec.Body.String())
	}
}
