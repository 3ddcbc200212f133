package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/legamerdc/tcpcore"
	"github.com/legamerdc/tcpcore/internal/admin"
	"github.com/legamerdc/tcpcore/internal/apps/chat"
	"github.com/legamerdc/tcpcore/internal/apps/greet"
	"github.com/legamerdc/tcpcore/internal/config"
	"github.com/legamerdc/tcpcore/internal/transcript"
	"github.com/legamerdc/tcpcore/sock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configPath string
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher with the greeting or chat handlers",
		Long: `Create a listening socket, start the dispatcher and serve until SIGINT/SIGTERM,
until --duration elapses, or until a handler asks the server to stop.

Settings come from --config (or ./tcpcore.yaml), TCPCORE_* environment
variables and flags, in increasing priority.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr(), nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Config file (YAML)")
	f.StringP(config.KeyPort, "p", d.Port, "Port or service name to listen on")
	f.Int(config.KeyBacklog, d.Backlog, "Listen backlog")
	f.StringP(config.KeyMode, "m", d.Mode, "Application: greet or chat")
	f.String(config.KeyAdmin, d.Admin, "Admin HTTP address, e.g. 127.0.0.1:9090 (disabled when empty)")
	f.Duration(config.KeyDuration, d.Duration, "Stop after this long (0 runs until interrupted)")
	f.String(config.KeyTranscript, d.Transcript, "Record received data to this zstd transcript (greet mode)")
	f.String(config.KeyLogLevel, d.LogLevel, "Log level: debug, info, warn, error")
	f.Duration(config.KeyPollTimeout, d.PollTimeout, "Upper bound on one readiness wait")
	f.Int(config.KeyMaxEvents, d.MaxEvents, "Ready descriptors handled per batch")
	f.Int(config.KeyMaxClients, d.MaxClients, "Connected client limit (0 for unlimited)")
	f.String(config.KeyGreeting, d.Greeting, "Greeting sent to new clients (greet mode)")
	f.Bool(config.KeyEcho, d.Echo, "Echo received data back (greet mode)")
	f.Int(config.KeyHistory, d.HistorySize, "Chat lines replayed to new members (chat mode)")
	f.Int(config.KeyMaxLine, d.MaxLineLen, "Longest accepted chat line (chat mode)")

	return cmd
}

// serveEnv 是与具体应用无关的运行环境
type serveEnv struct {
	cfg      config.Config
	lfd      int
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *tcpcore.Metrics
	ready    chan<- int
}

// runServe 建立监听 socket 并运行所选应用；ready 非 nil 时在分发循环启动后收到实际端口。
func runServe(ctx context.Context, cfg config.Config, logOut io.Writer, ready chan<- int) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	sock.SetLogger(logger.With("component", "sock"))

	lfd, err := sock.CreateListeningSocket(ctx, cfg.Port, cfg.Backlog)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}
	// 监听 socket 归调用方所有，在分发循环结束后关闭
	defer sock.Close(lfd)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env := &serveEnv{
		cfg:      cfg,
		lfd:      lfd,
		logger:   logger,
		registry: reg,
		metrics:  tcpcore.NewMetrics(tcpcore.WithRegistry(reg)),
		ready:    ready,
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	switch cfg.Mode {
	case config.ModeChat:
		room := chat.NewRoom(chat.Options{
			HistorySize: cfg.HistorySize,
			MaxLineLen:  cfg.MaxLineLen,
			Logger:      logger.With("component", "chat"),
		})
		return serveApp(ctx, env, chat.Handlers(), room, func(r *chat.Room) any {
			return map[string]any{
				"members":    r.Members(),
				"joined":     r.Joined,
				"left":       r.Left,
				"broadcasts": r.Broadcasts,
			}
		})
	default:
		opts := greet.Options{
			Greeting: cfg.Greeting,
			Echo:     cfg.Echo,
			Logger:   logger.With("component", "greet"),
		}
		if cfg.Transcript != "" {
			w, err := transcript.Create(cfg.Transcript)
			if err != nil {
				return err
			}
			defer func() {
				if err := w.Close(); err != nil {
					logger.Warn("closing transcript failed", "error", err)
				}
			}()
			opts.Recorder = w
		}
		return serveApp(ctx, env, greet.Handlers(opts), &greet.Stats{}, func(st *greet.Stats) any {
			return *st
		})
	}
}

func serveApp[T any](ctx context.Context, env *serveEnv, hs tcpcore.HandlerSet[T], shared *T, snapshot func(*T) any) error {
	logger := env.logger
	srv, err := tcpcore.New(env.lfd, hs, shared,
		tcpcore.WithConfig(env.cfg.Engine()),
		tcpcore.WithLogger(logger.With("component", "tcpcore")),
		tcpcore.WithMetrics(env.metrics),
	)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	started := time.Now()

	addr, _ := sock.LocalAddr(env.lfd)
	if addr != nil {
		logger.Info("serving", "mode", env.cfg.Mode, "addr", addr.String())
		if env.ready != nil {
			env.ready <- addr.Port
		}
	}

	adminCtx, stopAdmin := context.WithCancel(context.Background())
	adminDone := make(chan struct{})
	if env.cfg.Admin != "" {
		status := func() admin.Status {
			st := admin.Status{
				State:   srv.State().String(),
				Running: srv.State() == tcpcore.StateRunning,
				Clients: srv.NumClients(),
				Mode:    env.cfg.Mode,
				Uptime:  time.Since(started).Round(time.Millisecond).String(),
			}
			srv.WithShared(func(shared *T) { st.App = snapshot(shared) })
			return st
		}
		go func() {
			defer close(adminDone)
			if err := admin.Serve(adminCtx, env.cfg.Admin, admin.NewRouter(env.registry, status), logger, nil); err != nil {
				logger.Error("admin endpoint failed", "error", err)
			}
		}()
	} else {
		close(adminDone)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Info("duration elapsed, stopping")
		} else {
			logger.Info("interrupted, stopping")
		}
	case <-srv.Done():
		logger.Info("stop requested by handler")
	}
	runErr := srv.StopAndJoin()
	stopAdmin()
	<-adminDone

	var summary any
	srv.WithShared(func(shared *T) { summary = snapshot(shared) })
	logger.Info("server finished", "stats", summary)
	return runErr
}
