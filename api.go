package tcpcore

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/legamerdc/tcpcore/poller"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config 为分发循环的配置
type Config struct {
	PollTimeout    time.Duration // 单次 Wait 的上限，也是观察到停止请求的最坏延迟；必须为正
	MaxEvents      int           // 每批最多处理的就绪 fd 数
	MaxClients     int           // 同时在线的客户端上限，0 表示不限
	InitialClients int           // 客户端表初始容量，满时按倍数扩容
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		PollTimeout:    time.Second,
		MaxEvents:      10,
		MaxClients:     0,
		InitialClients: 16,
	}
}

func (c Config) validate() error {
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll timeout must be positive, got %s", ErrInvalidArgument, c.PollTimeout)
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("%w: max events must be positive, got %d", ErrInvalidArgument, c.MaxEvents)
	}
	if c.MaxClients < 0 || c.InitialClients < 0 {
		return fmt.Errorf("%w: client limits must not be negative", ErrInvalidArgument)
	}
	return nil
}

const defaultTracerName = "github.com/legamerdc/tcpcore"

type options struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	onError   func(error)
	newPoller func() (poller.Poller, error)
}

func defaultOptions() options {
	return options{
		cfg:       DefaultConfig(),
		logger:    slog.Default().With("component", "tcpcore"),
		tracer:    otel.Tracer(defaultTracerName),
		newPoller: poller.New,
	}
}

// Option 配置 Server
type Option func(*options)

// WithConfig 替换默认配置
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger 设置日志输出
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics 启用 Prometheus 指标
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer 指定 handler 调用的 tracer，默认取全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithErrorHandler 接收单连接范围内被吞掉的错误（ErrAccept、ErrRegistration、ErrRegistryFull、ErrHandlerPanic）。
// 在分发 goroutine 中调用，不持有服务端锁。
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// withPoller 替换就绪通知实现（测试用）
func withPoller(fn func() (poller.Poller, error)) Option {
	return func(o *options) { o.newPoller = fn }
}
