// Package metrics is the backend-neutral metrics facade used by the migration
// pipelines. Code records counters and histograms through the package-level
// helpers; cmd/ picks a concrete backend (datadog, pushgateway) at startup.
//
// With no backend set every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (e.g. {"step": "fetch", "status": "ok"}).
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by the backends.
const (
	StepTotal           = "migrate_step_total"
	StepDurationSeconds = "migrate_step_duration_seconds"
	RecordsTotal        = "migrate_records_total"
	BatchesTotal        = "migrate_batches_total"
	BlobTransfersTotal  = "migrate_blob_transfers_total"
	BlobDownloadSeconds = "migrate_blob_download_seconds"
	BlobBytes           = "migrate_blob_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the nop
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the active backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the active backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the active backend.
func Flush() error {
	return current().Flush()
}

// RecordStep records one step outcome and its duration since start.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// RecordRows counts rows read or written for a kind (usually a table name).
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}
