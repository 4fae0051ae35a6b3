package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

type Metrics struct {
	// Latency: сколько заняла операция вместе с имитацией задержки сети
	OperationDuration *prometheus.HistogramVec

	// Traffic: общее кол-во операций по ключу и статусу
	OperationsTotal *prometheus.CounterVec

	// Saturation: сколько вызовов ждет или выполняется по каждому ключу
	PendingOperations *prometheus.GaugeVec

	// Итоги проверок: approved, flagged, not_allowlisted, cap_exceeded
	CheckOutcomes *prometheus.CounterVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guardian_operation_duration_seconds",
			Help:    "Histogram of simulated policy operation latencies.",
			Buckets: []float64{.01, .05, .1, .25, .5, .75, 1, 1.25, 1.5, 2, 5},
		}, []string{"key", "status"}),

		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_operations_total",
			Help: "Total number of policy operations.",
		}, []string{"key", "status"}), // статусы: ok, error, canceled

		PendingOperations: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "guardian_pending_operations",
			Help: "Operations waiting for a slot or in flight, per loading key.",
		}, []string{"key"}),

		CheckOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_check_outcomes_total",
			Help: "Transaction checks by decision outcome.",
		}, []string{"outcome"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guardian_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}

func (m *Metrics) observeCheck(outcome domain.CheckOutcome) {
	m.CheckOutcomes.WithLabelValues(string(outcome)).Inc()
}
