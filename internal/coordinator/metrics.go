package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for dictionary builds.
type Metrics struct {
	Columns        *prometheus.CounterVec
	Cardinality    prometheus.Histogram
	ColumnDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	columns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segdict_columns_total",
		Help: "Columns processed, by outcome (built, reused, failed)",
	}, []string{"outcome"})

	cardinality := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "segdict_dictionary_cardinality",
		Help:    "Distinct values per built or reused dictionary",
		Buckets: prometheus.ExponentialBuckets(1, 10, 8),
	})

	columnDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segdict_column_duration_seconds",
		Help:    "Time spent processing one column, by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	reg.MustRegister(columns, cardinality, columnDuration)

	return &Metrics{
		Columns:        columns,
		Cardinality:    cardinality,
		ColumnDuration: columnDuration,
	}
}

func (m *Metrics) observe(r *ColumnResult) {
	if m == nil {
		return
	}
	outcome := string(r.Outcome)
	m.Columns.WithLabelValues(outcome).Inc()
	m.ColumnDuration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	if r.Err == nil {
		m.Cardinality.Observe(float64(r.Cardinality))
	}
}
