package tcpcore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/legamerdc/tcpcore/poller"
	"github.com/legamerdc/tcpcore/sock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	handlerNewClient = "on_new_client"
	handlerCanRead   = "on_can_read"
)

// run 为分发循环：每轮 Wait 一批就绪 fd，逐个处理后再检查停止标志。
func (s *Server[T]) run() {
	defer close(s.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()
	events := make([]poller.Event, s.opts.cfg.MaxEvents)
	for !s.StopRequested() {
		n, err := s.mux.Wait(events, s.opts.cfg.PollTimeout)
		if err != nil {
			s.runErr = fmt.Errorf("tcpcore: poll: %w", err)
			s.opts.logger.Error("poll failed, stopping dispatcher", "error", err)
			break
		}
		s.opts.metrics.polled(n)
		for _, ev := range events[:n] {
			if ev.Fd == s.lfd {
				s.accept(ctx)
				continue
			}
			s.readable(ctx, ev)
		}
	}
	s.shutdown()
}

func (s *Server[T]) accept(ctx context.Context) {
	fd, err := sock.Accept(s.lfd)
	if err != nil {
		// 水平触发下连接可能在 accept 之前被对端重置
		if sock.WouldBlock(err) {
			return
		}
		s.opts.metrics.acceptFailed()
		s.report(fmt.Errorf("%w: %w", ErrAccept, err))
		return
	}

	switch s.invoke(ctx, handlerNewClient, s.handlers.OnNewClient, fd) {
	case CloseClient:
		sock.Close(fd)
		s.opts.metrics.connRejected("handler")
		return
	case StopServer:
		sock.Close(fd)
		s.opts.metrics.connRejected("stop")
		return
	}

	if err := s.clients.add(fd); err != nil {
		sock.Close(fd)
		reason := "registry_full"
		if errors.Is(err, errDuplicateFD) {
			reason = "duplicate"
		}
		s.opts.metrics.connRejected(reason)
		s.report(fmt.Errorf("%w: fd %d", err, fd))
		return
	}
	if err := s.mux.Register(fd); err != nil {
		s.clients.remove(fd)
		sock.Close(fd)
		s.opts.metrics.connRejected("registration")
		s.report(fmt.Errorf("%w: fd %d: %w", ErrRegistration, fd, err))
		return
	}
	s.clientCount.Store(int64(s.clients.len()))
	s.opts.metrics.connAccepted()
	s.opts.logger.Debug("client connected", "fd", fd, "clients", s.clients.len())
}

func (s *Server[T]) readable(ctx context.Context, ev poller.Event) {
	// 同一批次中较早的事件可能已关闭该 fd
	if !s.clients.contains(ev.Fd) {
		s.opts.logger.Debug("skipping event for unknown fd", "fd", ev.Fd)
		return
	}

	var sig Signal
	if s.handlers.OnCanRead != nil {
		sig = s.invoke(ctx, handlerCanRead, s.handlers.OnCanRead, ev.Fd)
	} else if ev.Hangup {
		sig = CloseClient
	}

	if sig == CloseClient {
		s.closeClient(ev.Fd, "handler")
	}
	// StopServer 已在 invoke 中置位，连接保持到关闭流程
}

// closeClient 先注销再关闭，保证 registry 与就绪通知同步。
func (s *Server[T]) closeClient(fd int, reason string) {
	if err := s.mux.Unregister(fd); err != nil {
		s.opts.logger.Debug("unregister failed", "fd", fd, "error", err)
	}
	s.clients.remove(fd)
	sock.Close(fd)
	s.clientCount.Store(int64(s.clients.len()))
	s.opts.metrics.connClosed(reason, 1)
	s.opts.logger.Debug("client closed", "fd", fd, "reason", reason, "clients", s.clients.len())
}

func (s *Server[T]) invoke(ctx context.Context, name string, h HandlerFunc[T], fd int) Signal {
	if h == nil {
		return Continue
	}
	start := time.Now()
	_, span := s.opts.tracer.Start(ctx, "tcpcore."+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("tcpcore.fd", fd)),
	)
	sig, err := s.call(h, fd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.report(err)
	}
	span.SetAttributes(attribute.String("tcpcore.signal", sig.String()))
	span.End()
	s.opts.metrics.handlerDone(name, sig, time.Since(start))
	return sig
}

// call 在锁内调用 handler；panic 视为 CloseClient。
func (s *Server[T]) call(h HandlerFunc[T], fd int) (sig Signal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			sig = CloseClient
			err = fmt.Errorf("%w: fd %d: %v", ErrHandlerPanic, fd, r)
		}
	}()
	sig = h(Conn{fd: fd}, s.shared)
	if sig == StopServer {
		s.stopRequested = true
	}
	return sig, nil
}

func (s *Server[T]) shutdown() {
	s.state.Store(int32(StateStopping))
	s.mu.Lock()
	s.waker = nil
	s.mu.Unlock()

	n := s.clients.closeAll(func(fd int) { sock.Close(fd) })
	s.clientCount.Store(0)
	s.opts.metrics.connClosed("shutdown", n)
	if err := s.mux.Close(); err != nil {
		s.opts.logger.Warn("closing poller failed", "error", err)
	}
	s.state.Store(int32(StateStopped))
	s.opts.logger.Info("dispatcher stopped", "closed_clients", n)
}

func (s *Server[T]) report(err error) {
	s.opts.logger.Warn("connection error", "error", err)
	if s.opts.onError != nil {
		s.opts.onError(err)
	}
}
