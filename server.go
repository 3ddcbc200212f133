package tcpcore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/legamerdc/tcpcore/poller"
	"github.com/legamerdc/tcpcore/sock"
)

// State 为分发循环的生命周期状态
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Server 持有监听 fd、handler、共享数据和停止标志。
// 监听 fd 归调用方所有：Server 不会关闭它，应在 StopAndJoin 返回后由调用方关闭。
type Server[T any] struct {
	lfd      int
	handlers HandlerSet[T]
	opts     options

	// mu 保护 stopRequested、shared 与 waker；handler 调用期间一直持有
	mu            sync.Mutex
	stopRequested bool
	shared        *T
	waker         poller.Poller // 分发循环退出前置 nil，防止向已关闭的 fd 写入

	started     atomic.Bool
	state       atomic.Int32
	clientCount atomic.Int64
	done        chan struct{}
	runErr      error

	// 以下字段只由分发 goroutine 访问
	mux     poller.Poller
	clients *clientRegistry
}

// New 构造未启动的 Server。shared 可以为 nil，handler 收到的即为该指针。
func New[T any](listenFD int, handlers HandlerSet[T], shared *T, opts ...Option) (*Server[T], error) {
	if listenFD < 0 {
		return nil, fmt.Errorf("%w: listening fd %d", ErrInvalidArgument, listenFD)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.validate(); err != nil {
		return nil, err
	}
	s := &Server[T]{
		lfd:      listenFD,
		handlers: handlers,
		opts:     o,
		shared:   shared,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateStarting))
	return s, nil
}

// Start 创建就绪通知实例、注册监听 fd，然后在新的 goroutine 中运行分发循环。
// 任何失败都以 ErrStart 包装同步返回，此时没有分发循环在运行。Server 只能启动一次。
func (s *Server[T]) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already started", ErrStart)
	}
	fail := func(err error) error {
		s.state.Store(int32(StateStopped))
		close(s.done)
		s.opts.logger.Error("dispatcher start failed", "error", err)
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	p, err := s.opts.newPoller()
	if err != nil {
		return fail(err)
	}
	if err := sock.SetNonblock(s.lfd, true); err != nil {
		p.Close()
		return fail(err)
	}
	if err := p.Register(s.lfd); err != nil {
		p.Close()
		return fail(fmt.Errorf("register listening fd: %w", err))
	}

	s.mux = p
	s.clients = newClientRegistry(s.opts.cfg.InitialClients, s.opts.cfg.MaxClients)
	s.mu.Lock()
	s.waker = p
	s.mu.Unlock()

	s.state.Store(int32(StateRunning))
	s.opts.logger.Info("dispatcher running", "listen_fd", s.lfd, "poll_timeout", s.opts.cfg.PollTimeout)
	go s.run()
	return nil
}

// RequestStop 设置停止标志并唤醒分发循环；可重复、可并发调用。
// 不能在 handler 内调用（handler 应返回 StopServer）。
func (s *Server[T]) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopRequested {
		s.stopRequested = true
		s.opts.logger.Debug("stop requested")
	}
	if s.waker != nil {
		_ = s.waker.Wake()
	}
}

// StopRequested 在锁内读取停止标志。
func (s *Server[T]) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Wait 阻塞直到分发循环退出，返回导致其异常退出的错误（正常停止为 nil）。
// 未启动的 Server 立即返回。
func (s *Server[T]) Wait() error {
	if !s.started.Load() {
		return nil
	}
	<-s.done
	return s.runErr
}

// StopAndJoin 请求停止并等待分发循环退出。
func (s *Server[T]) StopAndJoin() error {
	s.RequestStop()
	return s.Wait()
}

// Done 在分发循环退出（或 Start 失败）后关闭。
func (s *Server[T]) Done() <-chan struct{} { return s.done }

func (s *Server[T]) State() State { return State(s.state.Load()) }

// NumClients 返回客户端表当前大小。
func (s *Server[T]) NumClients() int { return int(s.clientCount.Load()) }

// ListenFD 返回调用方传入的监听 fd。
func (s *Server[T]) ListenFD() int { return s.lfd }

// WithShared 在服务端锁内访问共享数据，与 handler 调用互斥。
func (s *Server[T]) WithShared(fn func(shared *T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.shared)
}
