// Package prompush implements a Prometheus backend for the metrics package.
//
// Collectors are registered on a private registry. The registry can be
// exposed for scraping through Registry, and Flush pushes it to a Pushgateway
// when a gateway URL is configured (useful for short-lived CLI runs).
package prompush

import (
	"fmt"

	"github.com/gandaldf/mysqlr/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091; empty disables pushing
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	statements   *prometheus.CounterVec   // mysqlr_statements_total
	statementDur *prometheus.HistogramVec // mysqlr_statement_duration_seconds
	rows         *prometheus.CounterVec   // mysqlr_rows_total
	retries      *prometheus.CounterVec   // mysqlr_retries_total
}

// NewBackend constructs a Prometheus backend. jobName defaults to "mysqlr".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = "mysqlr"
	}

	reg := prometheus.NewRegistry()

	statements := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StatementsTotal,
			Help: "Statements executed, partitioned by operation and status.",
		},
		[]string{"op", "status"},
	)
	statementDur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metrics.StatementSeconds,
			Help:    "Statement latency in seconds, partitioned by operation and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written or read, partitioned by operation.",
		},
		[]string{"op"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RetriesTotal,
			Help: "Retries caused by transient errors, partitioned by error code.",
		},
		[]string{"code"},
	)

	for name, c := range map[string]prometheus.Collector{
		"statement counter":   statements,
		"statement histogram": statementDur,
		"row counter":         rows,
		"retry counter":       retries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		statements:   statements,
		statementDur: statementDur,
		rows:         rows,
		retries:      retries,
	}, nil
}

// Registry returns the registry holding the backend's collectors.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StatementsTotal:
		b.statements.WithLabelValues(labels["op"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["op"]).Add(delta)
	case metrics.RetriesTotal:
		b.retries.WithLabelValues(labels["code"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StatementSeconds {
		return
	}
	b.statementDur.WithLabelValues(labels["op"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway. Without a gateway URL
// it does nothing.
func (b *Backend) Flush() error {
	if b.gatewayURL == "" {
		return nil
	}
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
