// Package metrics prometheus 指标：模拟器更新循环与表同步操作。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opc_tagbridge"

// Metrics 指标集合；方法对 nil 接收者安全，未启用指标时直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	loopIterations prometheus.Counter
	loopDuration   prometheus.Histogram
	tagWrites      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec

	syncOps        *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	discoveredTags prometheus.Gauge
	skippedTags    prometheus.Counter
}

// New 创建独立 registry 并注册全部指标和 Go 运行时指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "iterations_total",
			Help:      "Completed update loop iterations.",
		}),
		loopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "iteration_duration_seconds",
			Help:      "Time spent mutating all tags in one iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		tagWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "tag_writes_total",
			Help:      "Tag value writes by tag type.",
		}, []string{"type"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "publish_errors_total",
			Help:      "Snapshot publish failures by publisher.",
		}, []string{"publisher"}),
		syncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Schema synchronizer operations by operation and result.",
		}, []string{"op", "status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operation_duration_seconds",
			Help:      "Schema synchronizer operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		discoveredTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "last_tag_count",
			Help:      "Number of tags returned by the most recent discovery.",
		}),
		skippedTags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "skipped_tags_total",
			Help:      "Tags dropped because their names could not be parsed.",
		}),
	}

	m.registry.MustRegister(
		m.loopIterations,
		m.loopDuration,
		m.tagWrites,
		m.publishErrors,
		m.syncOps,
		m.syncDuration,
		m.discoveredTags,
		m.skippedTags,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 底层 prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIteration 记录一次完整的更新循环
func (m *Metrics) ObserveIteration(d time.Duration) {
	if m == nil {
		return
	}
	m.loopIterations.Inc()
	m.loopDuration.Observe(d.Seconds())
}

// TagWritten 记录一次标签写入
func (m *Metrics) TagWritten(tagType string) {
	if m == nil {
		return
	}
	m.tagWrites.WithLabelValues(tagType).Inc()
}

// PublishFailed 记录一次快照发布失败
func (m *Metrics) PublishFailed(publisher string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(publisher).Inc()
}

// ObserveSync 记录一次同步操作的结果与耗时
func (m *Metrics) ObserveSync(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.syncOps.WithLabelValues(op, status).Inc()
	m.syncDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveDiscovery 记录一次发现结果
func (m *Metrics) ObserveDiscovery(found, skipped int) {
	if m == nil {
		return
	}
	m.discoveredTags.Set(float64(found))
	m.skippedTags.Add(float64(skipped))
}
