// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Counters and histograms live in a private
// registry; Flush pushes the whole registry under the configured job.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"migrator/internal/metrics"
)

// Backend implements metrics.Backend by pushing to a Pushgateway.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	steps     *prometheus.CounterVec
	stepDur   *prometheus.HistogramVec
	records   *prometheus.CounterVec
	batches   prometheus.Counter
	blobs     *prometheus.CounterVec
	blobDur   *prometheus.HistogramVec
	blobBytes *prometheus.HistogramVec
}

// NewBackend builds a backend that pushes to gatewayURL under job. Extra
// grouping labels (e.g. run id) are attached to every push.
func NewBackend(job, gatewayURL string, grouping map[string]string) (*Backend, error) {
	if job == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: empty gateway url")
	}

	b := &Backend{
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Migration steps by outcome.",
		}, []string{"step", "status"}),
		stepDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Migration step duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows read or written by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Sink batches written.",
		}),
		blobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BlobTransfersTotal,
			Help: "Blob objects transferred by outcome.",
		}, []string{"status"}),
		blobDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.BlobDownloadSeconds,
			Help:    "Signed-URL download duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		blobBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.BlobBytes,
			Help:    "Downloaded object size.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{b.steps, b.stepDur, b.records, b.batches, b.blobs, b.blobDur, b.blobBytes} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	p := push.New(gatewayURL, job).Gatherer(b.reg)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	case metrics.BlobTransfersTotal:
		b.blobs.WithLabelValues(status(labels)).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	switch name {
	case metrics.StepDurationSeconds:
		b.stepDur.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.BlobDownloadSeconds:
		b.blobDur.WithLabelValues(status(labels)).Observe(value)
	case metrics.BlobBytes:
		b.blobBytes.WithLabelValues(status(labels)).Observe(value)
	}
}

// Flush pushes the registry, replacing any metrics previously pushed for the
// same job and grouping.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

func status(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

var _ metrics.Backend = (*Backend)(nil)
