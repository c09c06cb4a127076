// Package setup selects and installs the process-wide metrics backend for
// the migrator binaries.
package setup

import (
	"context"
	"log"
	"os"
	"time"

	"migrator/internal/metrics"
	"migrator/internal/metrics/datadog"
	"migrator/internal/metrics/prompush"
)

// Options picks a backend. Empty fields fall back to the environment
// (METRICS_BACKEND, PUSHGATEWAY_URL, METRICS_TAGS).
type Options struct {
	Backend        string
	PushgatewayURL string
	Job            string
	RunID          string
	Verbose        bool
}

// Install sets the metrics backend and returns the shutdown hook that
// flushes it. An unusable backend is logged and metrics stay disabled; the
// migration itself never fails because of metrics.
func Install(ctx context.Context, o Options) (shutdown func()) {
	noop := func() {}

	name := o.Backend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	job := o.Job
	if job == "" {
		job = "migrate"
	}

	switch name {
	case "pushgateway":
		gwURL := o.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		grouping := map[string]string{}
		if o.RunID != "" {
			grouping["run"] = o.RunID
		}
		b, err := prompush.NewBackend(job, gwURL, grouping)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return noop
		}
		log.Printf("metrics: url=%v backend=%v job_name=%v", gwURL, name, job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		if o.RunID != "" {
			tags = append(tags, "run:"+o.RunID)
		}
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return noop
		}
		log.Printf("metrics: backend=%v job_name=%v tags=%v", name, job, tags)
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is still buffered.
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		if o.Verbose {
			log.Printf("metrics: disabled (backend=%q)", name)
		}
		return noop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return noop
	}
}
