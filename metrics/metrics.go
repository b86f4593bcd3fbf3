// Package metrics records operational metrics for statements run through a
// mysqlr.Handler.
//
// A global, pluggable Backend receives counters and timings. It defaults to a
// no-op implementation, so recording is always safe even when no real backend
// is configured. Concrete backends live in subpackages (prompush, datadog) and
// keep their dependencies out of the core library.
package metrics

import "time"

// Metric names emitted by this package.
const (
	StatementsTotal  = "mysqlr_statements_total"
	StatementSeconds = "mysqlr_statement_duration_seconds"
	RowsTotal        = "mysqlr_rows_total"
	RetriesTotal     = "mysqlr_retries_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStatement counts one statement execution and its latency, labelled
// by operation (execute, execute_many, fetch_one, ...) and outcome.
func RecordStatement(op string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"op":     op,
		"status": status,
	}

	backend.IncCounter(StatementsTotal, 1, lbls)
	backend.ObserveHistogram(StatementSeconds, d.Seconds(), lbls)
}

// RecordRows counts rows written or read by op.
func RecordRows(op string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"op": op})
}

// RecordRetry counts one retry caused by a transient error. code is the MySQL
// error number, or "" for lost connections reported by the driver.
func RecordRetry(code string) {
	if code == "" {
		code = "connection"
	}
	backend.IncCounter(RetriesTotal, 1, Labels{"code": code})
}
