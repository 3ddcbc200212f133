package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestRouter(running *atomic.Bool) http.Handler {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tcpcore_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)
	return NewRouter(reg, func() Status {
		st := Status{State: "stopped", Running: running.Load(), Clients: 2, Mode: "greet"}
		if st.Running {
			st.State = "running"
		}
		return st
	})
}

func TestHealthz(t *testing.T) {
	var running atomic.Bool
	r := newTestRouter(&running)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while stopped, got %d", rec.Code)
	}

	running.Store(true)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while running, got %d", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	r := newTestRouter(&running)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "running" || st.Clients != 2 || st.Mode != "greet" {
		t.Fatalf("stats %+v", st)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "tcpcore_test_total 3") {
		t.Fatalf("metrics body:\n%s", rec.Body.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	errc := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { errc <- Serve(ctx, "127.0.0.1:0", newTestRouter(&running), logger, ready) }()

	addr := <-ready
	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return")
	}
}
