// Package admin 提供管理端 HTTP 接口：Prometheus 指标、健康检查与运行状态。
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status 为 /stats 返回的运行状态
type Status struct {
	State   string `json:"state"`
	Running bool   `json:"running"`
	Clients int    `json:"clients"`
	Mode    string `json:"mode,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	App     any    `json:"app,omitempty"`
}

type StatusFunc func() Status

// NewRouter 构造管理端路由。status 在每次请求时调用，必须并发安全。
func NewRouter(g prometheus.Gatherer, status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !status().Running {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status())
	})
	return r
}

// Serve 在 addr 上提供 h，ctx 取消后优雅关闭。ready 非 nil 时在监听成功后收到实际地址。
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	if ready != nil {
		ready <- ln.Addr()
	}
	logger.Info("admin endpoint listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
