package tcpcore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig 为 Prometheus 指标配置
type MetricsConfig struct {
	// Namespace 默认 "tcpcore"
	Namespace string
	// Subsystem 默认为空
	Subsystem string
	// ConstLabels 附加到所有指标上
	ConstLabels prometheus.Labels
	// Buckets 为 handler 耗时直方图的桶，默认 prometheus.DefBuckets
	Buckets []float64
	// Registry 默认 prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption 配置 MetricsConfig
type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) { c.Subsystem = subsystem }
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) { c.Buckets = buckets }
}

func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = registry }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "tcpcore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics 汇总分发循环的指标。nil *Metrics 合法，所有方法均为空操作。
type Metrics struct {
	accepted        prometheus.Counter
	rejected        *prometheus.CounterVec
	closed          *prometheus.CounterVec
	active          prometheus.Gauge
	acceptErrors    prometheus.Counter
	signals         *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	batchSize       prometheus.Histogram
}

// NewMetrics 在 Registry 上注册全部指标；同一 Registry 上重复调用会 panic（promauto 行为）。
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_accepted_total",
			Help:        "Connections accepted and registered with the dispatcher",
			ConstLabels: config.ConstLabels,
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_rejected_total",
			Help:        "Accepted connections closed before registration",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
		closed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_closed_total",
			Help:        "Registered connections closed by the dispatcher",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Connections currently held in the client registry",
			ConstLabels: config.ConstLabels,
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "accept_errors_total",
			Help:        "Failed accept calls on the listening socket",
			ConstLabels: config.ConstLabels,
		}),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_signals_total",
			Help:        "Control signals returned by handlers",
			ConstLabels: config.ConstLabels,
		}, []string{"handler", "signal"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_duration_seconds",
			Help:        "Handler invocation latency including lock wait",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"handler"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "poll_batch_size",
			Help:        "Ready descriptors returned per poll",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.LinearBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) connAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.active.Inc()
}

func (m *Metrics) connRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) connClosed(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.closed.WithLabelValues(reason).Add(float64(n))
	m.active.Sub(float64(n))
}

func (m *Metrics) acceptFailed() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

func (m *Metrics) handlerDone(handler string, sig Signal, d time.Duration) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(handler, sig.String()).Inc()
	m.handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}

func (m *Metrics) polled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.batchSize.Observe(float64(n))
}
