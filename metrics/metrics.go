// Package metrics 仓储操作的 Prometheus 指标。
package metrics

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "repokit"

// 状态标签取值
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Metrics 仓储指标集合。nil 接收者上的方法都是空操作，未启用指标时无需判空。
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
}

// New 在 reg 上注册指标；reg 为 nil 时使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_operations_total",
				Help:      "Total number of repository operations",
			},
			[]string{"entity", "operation", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repository_operation_duration_seconds",
				Help:      "Repository operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_rows_total",
				Help:      "Rows returned by reads or affected by writes",
			},
			[]string{"entity", "operation"},
		),
	}
}

// Observe 记录一次操作的结果与耗时
func (m *Metrics) Observe(entity, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, operation, Status(err)).Inc()
	m.duration.WithLabelValues(entity, operation).Observe(time.Since(started).Seconds())
}

// AddRows 累加读写行数
func (m *Metrics) AddRows(entity, operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(entity, operation).Add(float64(n))
}

// Status 把错误映射为状态标签
func Status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case stdErrors.Is(err, context.Canceled), stdErrors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusError
	}
}
